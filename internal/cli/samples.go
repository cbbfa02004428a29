package cli

import "quiz-match-service/internal/domain"

// sampleQuestionSets backs the in-memory loader and `migrate --seed`.
func sampleQuestionSets() map[string]domain.QuestionSet {
	return map[string]domain.QuestionSet{
		"arithmetic": {
			ID: "arithmetic",
			Questions: []domain.Question{
				{
					ID:              "q1",
					Text:            "What is 2 + 2?",
					Choices:         []domain.Choice{{ID: "a", Text: "3"}, {ID: "b", Text: "4"}, {ID: "c", Text: "5"}},
					CorrectChoiceID: "b",
					DurationMs:      10000,
				},
				{
					ID:              "q2",
					Text:            "What is 7 x 6?",
					Choices:         []domain.Choice{{ID: "a", Text: "42"}, {ID: "b", Text: "36"}, {ID: "c", Text: "48"}},
					CorrectChoiceID: "a",
					DurationMs:      10000,
				},
				{
					ID:              "q3",
					Text:            "What is 81 / 9?",
					Choices:         []domain.Choice{{ID: "a", Text: "8"}, {ID: "b", Text: "7"}, {ID: "c", Text: "9"}},
					CorrectChoiceID: "c",
					DurationMs:      8000,
				},
			},
		},
		"capitals": {
			ID: "capitals",
			Questions: []domain.Question{
				{
					ID:              "q1",
					Text:            "Capital of Japan?",
					Choices:         []domain.Choice{{ID: "a", Text: "Osaka"}, {ID: "b", Text: "Tokyo"}, {ID: "c", Text: "Kyoto"}},
					CorrectChoiceID: "b",
					DurationMs:      12000,
				},
				{
					ID:              "q2",
					Text:            "Capital of Canada?",
					Choices:         []domain.Choice{{ID: "a", Text: "Ottawa"}, {ID: "b", Text: "Toronto"}, {ID: "c", Text: "Vancouver"}},
					CorrectChoiceID: "a",
					DurationMs:      12000,
				},
			},
		},
	}
}
