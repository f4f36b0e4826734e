// Package quiz loads question banks and selects the questions played in a session.
package quiz

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/victornm/squadquiz/internal/domain"
)

// Bank is a named list of questions.
type Bank struct {
	Name      string
	Questions []domain.Question
}

type file struct {
	Quizzes []struct {
		Name      string `json:"name" yaml:"name"`
		Questions []struct {
			Question string   `json:"question" yaml:"question"`
			Options  []string `json:"options" yaml:"options"`
			Correct  int      `json:"correct" yaml:"correct"`
			Points   int      `json:"points" yaml:"points"`
		} `json:"questions" yaml:"questions"`
	} `json:"quizzes" yaml:"quizzes"`
}

// Load reads the first quiz of a JSON or YAML bank file.
func Load(path string) (*Bank, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("quiz: read %s: %w", path, err)
	}

	var f file
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &f)
	default:
		err = json.Unmarshal(b, &f)
	}
	if err != nil {
		return nil, fmt.Errorf("quiz: decode %s: %w", path, err)
	}

	return parse(f)
}

func parse(f file) (*Bank, error) {
	if len(f.Quizzes) == 0 {
		return nil, fmt.Errorf("quiz: file contains no quizzes")
	}

	q := f.Quizzes[0]
	bank := &Bank{
		Name:      q.Name,
		Questions: make([]domain.Question, 0, len(q.Questions)),
	}

	for i, raw := range q.Questions {
		if len(raw.Options) == 0 {
			return nil, fmt.Errorf("quiz: question %d has no options", i)
		}
		if raw.Correct < 0 || raw.Correct >= len(raw.Options) {
			return nil, fmt.Errorf("quiz: question %d: correct option %d out of range", i, raw.Correct)
		}

		bank.Questions = append(bank.Questions, domain.Question{
			Prompt:  raw.Question,
			Options: raw.Options,
			Correct: raw.Correct,
			Points:  raw.Points,
		})
	}

	if len(bank.Questions) == 0 {
		return nil, fmt.Errorf("quiz: quiz %q has no questions", bank.Name)
	}

	return bank, nil
}

// Select returns n questions for a session. When n covers the whole bank every question is
// returned in bank order, otherwise n questions are picked at random.
func (b *Bank) Select(n int, r *rand.Rand) []domain.Question {
	if n >= len(b.Questions) {
		out := make([]domain.Question, len(b.Questions))
		copy(out, b.Questions)
		return out
	}

	if r == nil {
		r = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	shuffled := make([]domain.Question, len(b.Questions))
	copy(shuffled, b.Questions)
	r.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	return shuffled[:n]
}

// Default is the built-in bank used when no quiz file is configured.
func Default() *Bank {
	return &Bank{
		Name: "PCD-Quiz",
		Questions: []domain.Question{
			{
				Prompt:  "What is a thread?",
				Options: []string{"Process", "Application", "Program", "Lightweight process"},
				Correct: 3,
				Points:  5,
			},
			{
				Prompt:  "Which of these is not a blocking method?",
				Options: []string{"join()", "sleep(<millis>)", "interrupted()", "wait()"},
				Correct: 2,
				Points:  5,
			},
			{
				Prompt:  "Which primitive lets the first N arrivals through with a bonus?",
				Options: []string{"Mutex", "Modified countdown latch", "Semaphore", "Condition variable"},
				Correct: 1,
				Points:  5,
			},
			{
				Prompt:  "What happens to threads waiting on a barrier when it breaks?",
				Options: []string{"They keep waiting", "They are released", "They are killed", "They deadlock"},
				Correct: 1,
				Points:  5,
			},
		},
	}
}
