package tokenizer

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
	"am": {}, "been": {}, "being": {}, "did": {}, "does": {}, "doing": {},
	"would": {}, "should": {}, "could": {}, "shall": {}, "may": {}, "might": {},
	"must": {}, "there": {}, "these": {}, "those": {}, "then": {}, "than": {},
	"them": {}, "him": {}, "her": {}, "his": {}, "she": {}, "our": {},
	"ours": {}, "you": {}, "your": {}, "yours": {}, "we": {}, "us": {},
	"me": {}, "my": {}, "mine": {}, "i": {}, "into": {}, "onto": {},
	"about": {}, "above": {}, "below": {}, "over": {}, "under": {}, "again": {},
	"all": {}, "any": {}, "both": {}, "few": {}, "more": {}, "most": {},
	"other": {}, "some": {}, "such": {}, "only": {}, "own": {}, "same": {},
	"too": {}, "very": {}, "just": {}, "also": {}, "how": {}, "why": {},
	"here": {}, "out": {}, "off": {}, "up": {}, "down": {}, "nor": {},
	"let": {}, "all's": {}, "via": {}, "because": {}, "while": {}, "during": {},
	"before": {}, "after": {}, "between": {}, "through": {}, "until": {}, "against": {},
}
