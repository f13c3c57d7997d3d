package voice

// BuiltinProfiles returns the Nigerian voices shipped with the gateway.
// Regional accents without a dedicated neural voice ride on the closest
// en-NG voice with small prosody adjustments.
func BuiltinProfiles() []Profile {
	return []Profile{
		{
			ID:          "en-NG-EzinneNeural",
			Name:        "Ezinne",
			Language:    "en-NG",
			Accent:      "Nigerian English",
			Gender:      "female",
			Description: "Nigerian English Female (Ezinne)",
			SampleText:  "Welcome to Nigeria! How are you doing today?",
			EngineVoice: "en-NG-EzinneNeural",
		},
		{
			ID:          "en-NG-AbeolaNeural",
			Name:        "Abeola",
			Language:    "en-NG",
			Accent:      "Nigerian English",
			Gender:      "male",
			Description: "Nigerian English Male (Abeola)",
			SampleText:  "Hello! I am speaking with a Nigerian accent.",
			EngineVoice: "en-NG-AbeoNeural",
		},
		{
			ID:            "yo-NG-AyotundeNeural",
			Name:          "Ayotunde",
			Language:      "en-NG",
			Accent:        "Yoruba-influenced English",
			Gender:        "female",
			Description:   "Yoruba-influenced English Female",
			SampleText:    "Bawo ni? How are you? Welcome to Lagos!",
			EngineVoice:   "en-NG-EzinneNeural",
			PitchOffsetHz: 4,
			RateOffsetPct: -5,
		},
		{
			ID:            "ig-NG-ObinnaNeural",
			Name:          "Obinna",
			Language:      "en-NG",
			Accent:        "Igbo-influenced English",
			Gender:        "male",
			Description:   "Igbo-influenced English Male",
			SampleText:    "Kedu? How are you? Ndewo from Enugu!",
			EngineVoice:   "en-NG-AbeoNeural",
			PitchOffsetHz: -3,
			RateOffsetPct: 5,
		},
		{
			ID:            "ha-NG-MaryamNeural",
			Name:          "Maryam",
			Language:      "en-NG",
			Accent:        "Hausa-influenced English",
			Gender:        "female",
			Description:   "Hausa-influenced English Female",
			SampleText:    "Sannu! How are you? Welcome to Kano!",
			EngineVoice:   "en-NG-EzinneNeural",
			PitchOffsetHz: -2,
			RateOffsetPct: -10,
		},
		{
			ID:            "pcm-NG-ChiomaNeural",
			Name:          "Chioma",
			Language:      "pcm-NG",
			Accent:        "Nigerian Pidgin",
			Gender:        "female",
			Description:   "Nigerian Pidgin Female",
			SampleText:    "How far? I dey fine o! Welcome make you enjoy!",
			EngineVoice:   "en-NG-EzinneNeural",
			PitchOffsetHz: 2,
			RateOffsetPct: 8,
		},
	}
}
