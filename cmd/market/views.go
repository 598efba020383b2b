package main

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"

	"github.com/rxtech-lab/argo-history/pkg/marketdata"
)

// listItem implements list.Item interface for provider and interval lists.
type listItem struct {
	name        string
	description string
}

func (i listItem) Title() string       { return i.name }
func (i listItem) Description() string { return i.description }
func (i listItem) FilterValue() string { return i.name }

func newList(title string, items []list.Item) list.Model {
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true

	l := list.New(items, delegate, 0, 0)
	l.Title = title
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)

	return l
}

// NewProviderList creates a new list for provider selection.
func NewProviderList() list.Model {
	names := marketdata.GetSupportedProviders()
	items := make([]list.Item, 0, len(names))

	for _, name := range names {
		info, err := marketdata.GetProviderInfo(name)
		if err != nil {
			continue
		}

		items = append(items, listItem{name: info.Name, description: fmt.Sprintf("%s: %s", info.DisplayName, info.Description)})
	}

	return newList("Select Data Provider", items)
}

// intervalDescriptions are shown next to each interval label.
var intervalDescriptions = map[marketdata.Timespan]string{
	marketdata.TimespanOneMinute:      "1 minute bars",
	marketdata.TimespanThreeMinutes:   "3 minute bars",
	marketdata.TimespanFiveMinutes:    "5 minute bars",
	marketdata.TimespanFifteenMinutes: "15 minute bars",
	marketdata.TimespanThirtyMinutes:  "30 minute bars",
	marketdata.TimespanOneHour:        "1 hour bars",
	marketdata.TimespanFourHours:      "4 hour bars",
	marketdata.TimespanOneDay:         "1 day bars",
	marketdata.TimespanOneWeek:        "1 week bars (approximate counts)",
	marketdata.TimespanOneMonth:       "1 month bars (approximate counts)",
}

// NewIntervalList creates a new list for interval selection.
func NewIntervalList() list.Model {
	items := make([]list.Item, 0, len(marketdata.AllTimespans))
	for _, ts := range marketdata.AllTimespans {
		items = append(items, listItem{name: ts.Label(), description: intervalDescriptions[ts]})
	}

	return newList("Select Interval", items)
}

// NewApiKeyInput creates a new text input for API key entry.
func NewApiKeyInput() textinput.Model {
	ti := textinput.New()
	ti.Placeholder = "your-api-key"
	ti.EchoMode = textinput.EchoPassword
	ti.CharLimit = 128
	ti.Width = 70
	ti.Prompt = "> "

	return ti
}

// NewSymbolInput creates a new text input for symbol entry.
func NewSymbolInput() textinput.Model {
	ti := textinput.New()
	ti.Placeholder = "BTCUSDT"
	ti.CharLimit = 64
	ti.Width = 50
	ti.Prompt = "> "

	return ti
}

// NewDateInput creates a new text input for a date.
func NewDateInput(placeholder string) textinput.Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.CharLimit = 25
	ti.Width = 30
	ti.Prompt = "> "

	return ti
}
