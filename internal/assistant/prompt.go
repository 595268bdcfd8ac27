package assistant

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/i474232898/weather-assistant/internal/common"
	"github.com/i474232898/weather-assistant/internal/weather"
	"github.com/i474232898/weather-assistant/internal/weather/providers"
)

// AssistantName is how the assistant introduces itself in every prompt.
const AssistantName = "MausamMate"

// Mode identifies which answer shape a prompt asks for.
type Mode string

const (
	ModeAsk      Mode = "ask"
	ModeInsights Mode = "insights"
	ModeActivity Mode = "activity"
	ModeCompare  Mode = "compare"
	ModeFlood    Mode = "flood"
)

var waterActivityKeywords = []string{"swimming", "boating", "fishing", "rafting", "kayaking", "paddle", "river", "lake", "beach"}

var floodKeywords = []string{"flood", "baadh", "river level", "water level"}

// IsWaterActivity reports whether an activity depends on river or lake conditions.
func IsWaterActivity(activity string) bool {
	return common.HasAny(activity, waterActivityKeywords...)
}

// IsFloodQuestion reports whether a question is about flooding and needs the wider station radius.
func IsFloodQuestion(question string) bool {
	return common.HasAny(question, floodKeywords...)
}

// Prompt is the rendered text plus the generation options that go with it.
type Prompt struct {
	Mode    Mode
	Text    string
	Options providers.GenerationOptions
	// Trimmed is set when series were shortened to fit MaxContextBytes.
	Trimmed bool
}

// Builder renders prompts. The zero value embeds the full context.
type Builder struct {
	// MaxContextBytes caps the serialized context; 0 means no cap.
	MaxContextBytes int
}

// Ask renders the conversational prompt. First questions get the full response-strategy
// instructions, follow-ups a shorter set and a smaller output budget.
func (b Builder) Ask(question string, agg weather.AggregatedContext, isFirst bool) (Prompt, error) {
	data, trimmed, err := b.serialize(agg)
	if err != nil {
		return Prompt{}, err
	}

	var sb strings.Builder
	opts := providers.GenerationOptions{Temperature: 0.8, TopK: 40, TopP: 0.95}

	if isFirst {
		opts.MaxOutputTokens = 500
		fmt.Fprintf(&sb, "You are %s, an Indian weather assistant with Open-Meteo forecast, air quality and USGS water monitoring data.\n\n", AssistantName)
		writeHeader(&sb, agg, data)
		fmt.Fprintf(&sb, "USER'S FIRST QUESTION: %q\n\n", question)
		sb.WriteString(`RESPONSE STRATEGY:
1. Short questions: brief answer with emojis, one or two lines.
2. Detailed questions: full analysis using all forecast, air quality and water data.
3. Planning questions: structured breakdown with timings and recommendations.
4. Water questions (flooding, river conditions): include the water level and flow readings.

FOR DETAILED ANSWERS USE THESE SECTIONS:
Overview, Temperature, Precipitation, Wind, Conditions (sky, visibility, UV), Water Conditions,
Comfort (humidity, pressure, air quality), Hourly Breakdown, Recommendations.

RULES:
`)
		writeLocationDirective(&sb, agg)
		sb.WriteString(`- Be specific with timings from the hourly data ("10 AM se 2 PM tak").
- Explain numbers ("humidity 85% (very sticky)", "river flow 15,000 cfs (above normal)").
- Use natural Hinglish.
- Warn about flooding if water levels are unusually high.

Decide whether this question needs a SHORT or a DETAILED answer and reply accordingly.`)
	} else {
		opts.MaxOutputTokens = 400
		fmt.Fprintf(&sb, "You are %s, continuing a weather conversation with Open-Meteo and USGS data.\n\n", AssistantName)
		writeHeader(&sb, agg, data)
		fmt.Fprintf(&sb, "USER QUESTION: %q\n\n", question)
		sb.WriteString("RULES:\n")
		writeLocationDirective(&sb, agg)
		sb.WriteString(`- Match the answer length to the question: one line for quick checks, sections
  (Key Info, Water Status, Timing, Details, Advice) for planning or safety questions.
- Use precise timings from the hourly data and warn about water hazards.
- Use natural Hinglish.`)
	}

	return Prompt{Mode: ModeAsk, Text: sb.String(), Options: opts, Trimmed: trimmed}, nil
}

// Insights renders the multi-section analysis prompt.
func (b Builder) Insights(question string, agg weather.AggregatedContext) (Prompt, error) {
	data, trimmed, err := b.serialize(agg)
	if err != nil {
		return Prompt{}, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "As %s, give detailed weather and water insights for %s.\n\n", AssistantName, agg.PlaceName)
	writeHeader(&sb, agg, data)
	fmt.Fprintf(&sb, "QUESTION: %q\n\n", question)
	sb.WriteString(`COVER:
1. Current conditions (weather and water)
2. Next 6-12 hours
3. Weather pattern analysis
4. Water level and flow analysis, if data is available
5. Flood risk, combining rainfall and water data
6. Practical recommendations
7. Alerts and warnings

Use clear sections, natural Hinglish and specific data points.`)

	return Prompt{
		Mode:    ModeInsights,
		Text:    sb.String(),
		Options: providers.GenerationOptions{Temperature: 0.6, MaxOutputTokens: 1500},
		Trimmed: trimmed,
	}, nil
}

// Activity renders the activity-suitability prompt. Water safety instructions are only
// added for water activities.
func (b Builder) Activity(activity string, agg weather.AggregatedContext) (Prompt, error) {
	water := IsWaterActivity(activity)
	if !water {
		agg.Water = nil
		agg.WaterNote = ""
	}
	data, trimmed, err := b.serialize(agg)
	if err != nil {
		return Prompt{}, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "User wants to do: %q in %s.\n\n", activity, agg.PlaceName)
	writeHeader(&sb, agg, data)
	fmt.Fprintf(&sb, `As %s, judge whether this activity suits the current conditions and give:
1. Suitability score (1-10)
2. Best time today
3. What to wear or bring
4. Weather considerations
5. Water safety notes, if applicable
6. Alternatives if conditions are poor
`, AssistantName)
	if water {
		sb.WriteString("\nIMPORTANT: include a detailed water safety analysis from the station readings: flow rates, water levels and hazards.\n")
	}
	sb.WriteString("\nAnswer in helpful Hinglish and put safety first.")

	return Prompt{
		Mode:    ModeActivity,
		Text:    sb.String(),
		Options: providers.GenerationOptions{Temperature: 0.8, MaxOutputTokens: 1000},
		Trimmed: trimmed,
	}, nil
}

// Compare renders the time-window comparison prompt.
func (b Builder) Compare(question string, agg weather.AggregatedContext) (Prompt, error) {
	data, trimmed, err := b.serialize(agg)
	if err != nil {
		return Prompt{}, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Compare weather and water conditions for the question %q in %s.\n\n", question, agg.PlaceName)
	writeHeader(&sb, agg, data)
	sb.WriteString(`Compare:
- Morning vs evening
- Today vs tomorrow
- Hourly variations
- Temperature and precipitation trends
- Water level and flow trends, if available
- Safety conditions across the day

Give clear comparisons in Hinglish with specific recommendations.`)

	return Prompt{
		Mode:    ModeCompare,
		Text:    sb.String(),
		Options: providers.GenerationOptions{Temperature: 0.5, MaxOutputTokens: 1200},
		Trimmed: trimmed,
	}, nil
}

// Flood renders the flood-risk assessment prompt.
func (b Builder) Flood(agg weather.AggregatedContext) (Prompt, error) {
	data, trimmed, err := b.serialize(agg)
	if err != nil {
		return Prompt{}, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Provide a flood risk assessment for %s.\n\n", agg.PlaceName)
	writeHeader(&sb, agg, data)
	sb.WriteString(`Provide:
1. Current flood risk level (Low/Moderate/High/Severe)
2. Contributing factors (rainfall, water levels, flow rates)
3. Timeline for the next 6-24 hours
4. Areas of concern near the monitoring stations
5. Safety recommendations
6. Emergency preparedness if the risk is elevated

Use both the forecast and the real-time water data. Be specific about risk levels and timing.`)

	return Prompt{
		Mode:    ModeFlood,
		Text:    sb.String(),
		Options: providers.GenerationOptions{Temperature: 0.3, MaxOutputTokens: 1000},
		Trimmed: trimmed,
	}, nil
}

func writeHeader(sb *strings.Builder, agg weather.AggregatedContext, data string) {
	fmt.Fprintf(sb, "LOCATION: %s\n", agg.PlaceName)
	if cond := agg.Snapshot.Condition(); cond != weather.ConditionUnknown {
		fmt.Fprintf(sb, "CURRENT CONDITION: %s\n", cond)
	}
	fmt.Fprintf(sb, "COMPLETE WEATHER AND WATER DATA:\n%s\n\n", data)
}

func writeLocationDirective(sb *strings.Builder, agg weather.AggregatedContext) {
	fmt.Fprintf(sb, "- ALWAYS start your answer by naming the location: \"📍 %s mein...\"\n", agg.PlaceName)
}

// serialize renders agg as indented JSON. With a cap set, hourly and daily series are
// halved until the payload fits or a single row is left.
func (b Builder) serialize(agg weather.AggregatedContext) (string, bool, error) {
	data, err := json.MarshalIndent(agg, "", "  ")
	if err != nil {
		return "", false, fmt.Errorf("encode context: %w", err)
	}
	if b.MaxContextBytes <= 0 || len(data) <= b.MaxContextBytes {
		return string(data), false, nil
	}

	rows := agg.Snapshot.Hourly.Len()
	if d := agg.Snapshot.Daily.Len(); d > rows {
		rows = d
	}
	for rows > 1 && len(data) > b.MaxContextBytes {
		rows /= 2
		trimmed := agg
		trimmed.Snapshot.Hourly = headSeries(agg.Snapshot.Hourly, rows)
		trimmed.Snapshot.Daily = headSeries(agg.Snapshot.Daily, rows)
		trimmed.Snapshot.AirQuality.Hourly = headSeries(agg.Snapshot.AirQuality.Hourly, rows)
		if data, err = json.MarshalIndent(trimmed, "", "  "); err != nil {
			return "", false, fmt.Errorf("encode context: %w", err)
		}
	}
	return string(data), true, nil
}

// headSeries keeps the first n rows of every field.
func headSeries(s weather.Series, n int) weather.Series {
	if s.Len() <= n {
		return s
	}
	out := make(weather.Series, len(s))
	for field, values := range s {
		if len(values) > n {
			values = values[:n]
		}
		out[field] = values
	}
	return out
}
