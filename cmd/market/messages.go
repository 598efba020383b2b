package main

import "github.com/rxtech-lab/argo-history/pkg/marketdata"

// PromptValues are the download parameters the prompt collects. Fields that are already
// set when the prompt starts are not asked for.
type PromptValues struct {
	Provider string
	APIKey   string
	Symbol   string
	Interval string
	Start    string
	End      string
}

// needsAPIKey reports whether the chosen provider requires a key that is still missing.
func (v PromptValues) needsAPIKey() bool {
	return v.Provider == "polygon" && v.APIKey == ""
}

// knownInterval reports whether Interval names a supported timespan. Unknown values are
// asked for again.
func (v PromptValues) knownInterval() bool {
	_, err := marketdata.ParseTimespan(v.Interval)
	return err == nil
}

// Complete reports whether every required value is present.
func (v PromptValues) Complete() bool {
	return v.Provider != "" && !v.needsAPIKey() && v.Symbol != "" && v.knownInterval() && v.Start != "" && v.End != ""
}
