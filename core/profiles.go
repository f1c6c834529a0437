package core

// SeedProfiles provides default demo profiles so the server runs without a
// profile database. Embeddings are short fixed vectors; real deployments
// supply model-generated ones through a ProfileStore backend.
func SeedProfiles() []ProfileVector {
	return []ProfileVector{
		{
			UserID:      "ava",
			DisplayName: "Ava",
			Summary:     "Product designer who spends weekends hiking and sketching. Curious, warm, asks a lot of questions.",
			OpeningLine: "Hi! I have to ask: what's the last thing that made you lose track of time?",
			Embedding:   []float64{0.62, 0.18, 0.44, 0.71, 0.12, 0.33, 0.55, 0.27},
			Personality: Personality{Openness: 0.85, Conscientiousness: 0.6, Extraversion: 0.7, Agreeableness: 0.8, Neuroticism: 0.3},
			HardFilters: map[string]string{"smoker": "false", "wants_kids": "true"},
			SoftFilters: map[string]float64{"outdoorsy": 0.9, "night_owl": 0.2},
		},
		{
			UserID:      "ben",
			DisplayName: "Ben",
			Summary:     "Backend engineer and amateur chef. Dry humor, loves long walks and longer dinners.",
			OpeningLine: "Hey there. Fair warning: I will eventually steer this conversation toward food.",
			Embedding:   []float64{0.58, 0.22, 0.40, 0.66, 0.15, 0.30, 0.51, 0.31},
			Personality: Personality{Openness: 0.75, Conscientiousness: 0.7, Extraversion: 0.5, Agreeableness: 0.75, Neuroticism: 0.35},
			HardFilters: map[string]string{"smoker": "false", "wants_kids": "true"},
			SoftFilters: map[string]float64{"foodie": 0.95, "early_bird": 0.6},
		},
		{
			UserID:      DemoAgentID,
			DisplayName: "Demo",
			Summary:     "Scripted demo participant used for onboarding walkthroughs.",
			OpeningLine: "Hello! I'm the demo participant, happy to chat.",
			Embedding:   []float64{0.50, 0.50, 0.50, 0.50, 0.50, 0.50, 0.50, 0.50},
			Personality: Personality{Openness: 0.5, Conscientiousness: 0.5, Extraversion: 0.5, Agreeableness: 0.5, Neuroticism: 0.5},
		},
	}
}
