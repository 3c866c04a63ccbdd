package transcribe

// listenResponse is the subset of the Deepgram prerecorded response we consume
type listenResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Result is a finished transcription. Empty text is a valid result: silence
// transcribes to nothing.
type Result struct {
	Text       string
	Confidence float64
}
