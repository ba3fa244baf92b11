// Package corpus writes synthetic markdown notes for exercising the index
// at scale. Notes draw their sentences from a handful of categories, so notes
// of one category should score as related.
package corpus

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/vault"
)

var chunks = map[string][]string{
	"fiction": {
		"The old mansion stood silently against the dark sky, its windows like hollow eyes watching the approaching storm.",
		"Sarah walked through the misty garden, her footsteps echoing on the cobblestone path as shadows danced around her.",
		"The detective examined the crime scene carefully, noting every detail that might lead to solving this mysterious case.",
		"In the distant kingdom, dragons soared through cloudy skies while brave knights prepared for their next quest.",
		"The spaceship traveled through the vast emptiness of space, carrying its crew toward an unknown planet.",
		"Elizabeth received the letter with trembling hands, knowing it would change her life forever.",
		"The professor's laboratory was filled with strange inventions and bubbling chemicals that glowed in the dim light.",
		"Through the thick forest, the adventurers searched for the ancient treasure that legends spoke of.",
		"The small village by the sea had always been peaceful until the mysterious stranger arrived one stormy night.",
		"In the library's forbidden section, ancient books held secrets that few were brave enough to uncover.",
	},
	"science": {
		"The quantum mechanics experiment revealed fascinating properties of particle behavior at the subatomic level.",
		"Climate change affects global weather patterns, causing significant shifts in temperature and precipitation worldwide.",
		"DNA sequencing technology has revolutionized our understanding of genetic diseases and hereditary traits.",
		"The theory of relativity explains how time and space are interconnected in ways that challenge common intuition.",
		"Artificial intelligence algorithms continue to evolve, showing remarkable capabilities in pattern recognition and learning.",
		"Renewable energy sources like solar and wind power offer sustainable alternatives to fossil fuels.",
		"The human brain contains billions of neurons that form complex networks responsible for consciousness and thought.",
		"Chemical reactions involve the breaking and forming of bonds between atoms and molecules.",
		"Evolution through natural selection explains the diversity of life forms we observe in nature today.",
		"Astronomical observations reveal distant galaxies that formed billions of years ago in the early universe.",
	},
	"philosophy": {
		"The nature of consciousness remains one of philosophy's most enduring and perplexing questions for scholars.",
		"Ethical dilemmas often arise when personal values conflict with societal expectations and moral obligations.",
		"Free will versus determinism represents a fundamental debate about human agency and responsibility.",
		"The meaning of existence has been contemplated by thinkers throughout history across all cultures.",
		"Knowledge and truth are concepts that philosophers have analyzed through various epistemological frameworks.",
		"Justice requires balancing individual rights with collective welfare in complex social situations.",
		"Beauty and aesthetics involve subjective experiences that seem to have objective underlying principles.",
		"Language shapes thought in ways that influence how we perceive and understand reality around us.",
		"The relationship between mind and body poses interesting questions about consciousness and identity.",
		"Time and space form the fundamental dimensions within which all experience and existence occur.",
	},
	"history": {
		"The Industrial Revolution transformed society by introducing mechanized production and changing labor practices.",
		"Ancient civilizations developed sophisticated systems of governance, trade, and cultural expression.",
		"Wars throughout history have shaped political boundaries and influenced technological advancement significantly.",
		"The Renaissance period marked a rebirth of art, science, and intellectual inquiry in European culture.",
		"Colonial expansion spread European influence worldwide while profoundly impacting indigenous populations everywhere.",
		"The development of writing systems enabled the preservation and transmission of knowledge across generations.",
		"Religious movements have profoundly influenced social structures, moral values, and political systems throughout time.",
		"Trade routes connected distant civilizations, facilitating cultural exchange and economic development across continents.",
		"Revolutionary movements emerged when social tensions reached critical points in various historical periods.",
		"Technological innovations like the printing press dramatically changed how information was shared and preserved.",
	},
}

// Categories lists the note categories in a fixed order.
var Categories = []string{"fiction", "science", "philosophy", "history"}

const (
	crossDomainChance = 0.3
	seeAlsoChance     = 0.2
)

// FileName is the name of note number n in category.
func FileName(n int, category string) string {
	return fmt.Sprintf("generated_note_%06d_%s.md", n, category)
}

// Note renders note number n of category.
func Note(rng *rand.Rand, category string, n int) string {
	pool := chunks[category]
	picked := rng.Perm(len(pool))[:3+rng.Intn(3)]
	title := strings.ToUpper(category[:1]) + category[1:]

	var b strings.Builder
	fmt.Fprintf(&b, "# %s Note %06d\n\n", title, n)
	fmt.Fprintf(&b, "Category: %s\n", title)
	fmt.Fprintf(&b, "Generated: File %d\n\n", n)
	for i, idx := range picked {
		fmt.Fprintf(&b, "## Section %d\n\n%s\n\n", i+1, pool[idx])
		if rng.Float64() < crossDomainChance {
			other := Categories[rng.Intn(len(Categories))]
			fmt.Fprintf(&b, "This relates to concepts in %s and demonstrates the interconnectedness of knowledge domains.\n\n", other)
		}
	}
	if rng.Float64() < seeAlsoChance {
		other := 1
		if n > 1 {
			other = 1 + rng.Intn(n-1)
		}
		fmt.Fprintf(&b, "See also: [[Note %06d]] for related concepts.\n\n", other)
	}
	return b.String()
}

// Generate writes count notes numbered from start through a, under dir
// (relative to the adapter root, "" for the root itself). It returns the
// written paths in order.
func Generate(ctx context.Context, a vault.Adapter, dir string, start, count int, rng *rand.Rand) ([]string, error) {
	if start < 1 {
		start = 1
	}
	if dir != "" {
		if err := a.Mkdir(ctx, dir); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	paths := make([]string, 0, count)
	for n := start; n < start+count; n++ {
		if err := ctx.Err(); err != nil {
			return paths, err
		}
		category := Categories[rng.Intn(len(Categories))]
		path := vault.Join(dir, FileName(n, category))
		if err := a.Write(ctx, path, []byte(Note(rng, category, n))); err != nil {
			return paths, fmt.Errorf("writing note %d: %w", n, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
