package ipc

import (
	"encoding/json"
	"fmt"
)

// Command represents a command sent over the socket
type Command struct {
	Name string `json:"name"`
	Args any    `json:"args,omitempty"`
}

// Response represents a response sent back over the socket
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Reply is a Response as seen by a client, with Data left undecoded.
type Reply struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Decode unmarshals Data into out.
func (r *Reply) Decode(out any) error {
	if len(r.Data) == 0 {
		return fmt.Errorf("response carries no data")
	}
	return json.Unmarshal(r.Data, out)
}

// --- Command Names ---

const (
	CmdGetTimerState       = "get_timer_state"
	CmdPauseTimer          = "pause_timer"
	CmdResumeTimer         = "resume_timer"
	CmdSkipBreak           = "skip_break"
	CmdResetTimer          = "reset_timer"
	CmdGetSettings         = "get_settings"
	CmdUpdateSettings      = "update_settings"
	CmdGetAnalyticsSummary = "get_analytics_summary"
	CmdGetBreakHistory     = "get_break_history"
	CmdGetDailyStatsRange  = "get_daily_stats_range"
	CmdExportDataCSV       = "export_data_csv"
	CmdClearAllData        = "clear_all_data"
	CmdGetOnboardingState  = "get_onboarding_state"
	CmdCompleteOnboarding  = "complete_onboarding"
	CmdMarkTooltipSeen     = "mark_tooltip_seen"
	CmdTriggerDemoBreak    = "trigger_demo_break"
	CmdResetOnboarding     = "reset_onboarding"
	CmdPing                = "ping"
	// CmdSubscribe turns the connection into an event stream: one Response,
	// then one JSON event per line until either side closes.
	CmdSubscribe = "subscribe"
)

// --- Command Argument Structs ---

type BreakHistoryArgs struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type DailyStatsRangeArgs struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type TooltipArgs struct {
	ID string `json:"id"`
}

type SubscribeArgs struct {
	Types []string `json:"types,omitempty"`
}

// update_settings takes the partial settings object itself as Args.
