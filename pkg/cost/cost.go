// Package cost turns elapsed audio minutes and LLM token counts into a
// monetary breakdown.
package cost

import (
	"encoding/json"
)

// Default rates, in dollars.
const (
	DefaultTranscriptionPerMinute = 0.37 / 60
	DefaultInputPerToken          = 0.150 / 1_000_000
	DefaultOutputPerToken         = 0.600 / 1_000_000
)

// Rates are per-unit prices.
type Rates struct {
	TranscriptionPerMinute float64 `yaml:"transcription_per_minute" json:"transcription_per_minute"`
	InputPerToken          float64 `yaml:"input_per_token" json:"input_per_token"`
	OutputPerToken         float64 `yaml:"output_per_token" json:"output_per_token"`
}

// DefaultRates returns the rates used when none are configured.
func DefaultRates() Rates {
	return Rates{
		TranscriptionPerMinute: DefaultTranscriptionPerMinute,
		InputPerToken:          DefaultInputPerToken,
		OutputPerToken:         DefaultOutputPerToken,
	}
}

// Breakdown holds the component costs of one run. The total is always
// derived from the components.
type Breakdown struct {
	transcription float64
	input         float64
	output        float64
}

// NewBreakdown builds a breakdown from component costs.
func NewBreakdown(transcription, input, output float64) Breakdown {
	return Breakdown{
		transcription: nonNegative(transcription),
		input:         nonNegative(input),
		output:        nonNegative(output),
	}
}

func (b Breakdown) Transcription() float64 { return b.transcription }
func (b Breakdown) Input() float64         { return b.input }
func (b Breakdown) Output() float64        { return b.output }

// Total is the sum of the three components.
func (b Breakdown) Total() float64 {
	return b.transcription + b.input + b.output
}

type breakdownJSON struct {
	TranscriptionCost float64 `json:"transcription_cost"`
	InputCost         float64 `json:"input_cost"`
	OutputCost        float64 `json:"output_cost"`
	TotalCost         float64 `json:"total_cost"`
}

func (b Breakdown) MarshalJSON() ([]byte, error) {
	return json.Marshal(breakdownJSON{
		TranscriptionCost: b.transcription,
		InputCost:         b.input,
		OutputCost:        b.output,
		TotalCost:         b.Total(),
	})
}

// UnmarshalJSON ignores any stored total_cost and recomputes it.
func (b *Breakdown) UnmarshalJSON(data []byte) error {
	var v breakdownJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*b = NewBreakdown(v.TranscriptionCost, v.InputCost, v.OutputCost)
	return nil
}

// Accountant computes breakdowns at fixed rates. It has no state besides
// the rates and is safe for concurrent use.
type Accountant struct {
	rates Rates
}

func NewAccountant(rates Rates) *Accountant {
	return &Accountant{rates: rates}
}

func (a *Accountant) Rates() Rates {
	return a.rates
}

// Compute prices elapsedMinutes of transcription plus the prompt and
// completion tokens. Negative inputs count as zero.
func (a *Accountant) Compute(elapsedMinutes float64, promptTokens, completionTokens int) Breakdown {
	return NewBreakdown(
		nonNegative(elapsedMinutes)*a.rates.TranscriptionPerMinute,
		float64(max(promptTokens, 0))*a.rates.InputPerToken,
		float64(max(completionTokens, 0))*a.rates.OutputPerToken,
	)
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
