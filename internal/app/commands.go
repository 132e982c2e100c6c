package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	"blinky/internal/ipc"
	"blinky/internal/model"
)

// processCommand routes the command to the correct handler
func (a *App) processCommand(ctx context.Context, cmd ipc.Command) ipc.Response {
	switch cmd.Name {
	case ipc.CmdPing:
		return ipc.Response{Success: true, Message: "pong", Data: "pong"}

	// --- timer ---
	case ipc.CmdGetTimerState:
		return ok(a.scheduler.State())
	case ipc.CmdPauseTimer:
		return ok(a.scheduler.Pause())
	case ipc.CmdResumeTimer:
		return ok(a.scheduler.Resume())
	case ipc.CmdResetTimer:
		return ok(a.scheduler.Reset())
	case ipc.CmdSkipBreak:
		st, err := a.scheduler.Skip()
		if err != nil {
			return errorResponse(err, st)
		}
		return ok(st)
	case ipc.CmdTriggerDemoBreak:
		return ok(a.scheduler.TriggerDemoBreak())

	// --- settings ---
	case ipc.CmdGetSettings:
		return ok(a.settings.Get())
	case ipc.CmdUpdateSettings:
		raw, isMap := cmd.Args.(map[string]any)
		if !isMap {
			return errorResponse(&model.ValidationError{Reason: "update_settings expects an object of settings"}, nil)
		}
		patch, err := model.DecodeSettingsPatch(raw)
		if err != nil {
			return errorResponse(err, nil)
		}
		st, err := a.settings.Update(ctx, patch)
		if err != nil {
			return errorResponse(err, st)
		}
		return ok(st)

	// --- analytics ---
	case ipc.CmdGetAnalyticsSummary:
		return ok(a.analytics.Summary())
	case ipc.CmdGetBreakHistory:
		var args ipc.BreakHistoryArgs
		if err := decodeArgs(cmd.Args, &args); err != nil {
			return errorResponse(err, nil)
		}
		records, err := a.analytics.BreakHistory(ctx, args.Limit, args.Offset)
		if err != nil {
			return errorResponse(err, nil)
		}
		return ok(records)
	case ipc.CmdGetDailyStatsRange:
		var args ipc.DailyStatsRangeArgs
		if err := decodeArgs(cmd.Args, &args); err != nil {
			return errorResponse(err, nil)
		}
		days, err := a.analytics.DailyStatsRange(args.From, args.To)
		if err != nil {
			return errorResponse(err, nil)
		}
		return ok(days)
	case ipc.CmdExportDataCSV:
		path, err := a.analytics.ExportCSV(ctx)
		if err != nil {
			return errorResponse(err, nil)
		}
		return ipc.Response{Success: true, Message: "exported to " + path, Data: path}
	case ipc.CmdClearAllData:
		if err := a.clearAllData(ctx); err != nil {
			return errorResponse(err, false)
		}
		return ok(true)

	// --- onboarding ---
	case ipc.CmdGetOnboardingState:
		return ok(a.settings.Onboarding())
	case ipc.CmdCompleteOnboarding:
		st, changed, err := a.settings.CompleteOnboarding(ctx)
		if changed {
			a.scheduler.Resume()
		}
		if err != nil {
			return errorResponse(err, st)
		}
		return ok(st)
	case ipc.CmdMarkTooltipSeen:
		var args ipc.TooltipArgs
		if err := decodeArgs(cmd.Args, &args); err != nil {
			return errorResponse(err, nil)
		}
		seen, err := a.settings.MarkTooltipSeen(ctx, args.ID)
		if err != nil {
			return errorResponse(err, seen)
		}
		return ok(seen)
	case ipc.CmdResetOnboarding:
		err := a.settings.ResetOnboarding(ctx)
		a.scheduler.Hold()
		if err != nil {
			return errorResponse(err, false)
		}
		return ok(true)

	default:
		return ipc.Response{Success: false, Message: fmt.Sprintf("invalid argument: unknown command %q", cmd.Name)}
	}
}

// clearAllData wipes break history together with onboarding progress in one
// transaction. Settings are kept.
func (a *App) clearAllData(ctx context.Context) error {
	fresh := model.OnboardingState{TooltipsSeen: []string{}}
	err := a.analytics.ClearAll(ctx, func(ctx context.Context) error {
		return a.storage.SaveOnboarding(ctx, fresh)
	})
	if err != nil {
		return err
	}
	a.settings.AdoptOnboarding(fresh)
	a.scheduler.SetCompletedToday(0)
	a.scheduler.Hold()
	a.log.Warn().Msg("all user data cleared")
	return nil
}

func ok(data any) ipc.Response {
	return ipc.Response{Success: true, Data: data}
}

// errorResponse maps typed errors onto the wire. data, when set, carries the
// state that is still valid despite the failure.
func errorResponse(err error, data any) ipc.Response {
	var ve *model.ValidationError
	var pe *model.PersistenceError
	msg := err.Error()
	switch {
	case errors.As(err, &ve):
		msg = ve.Error()
	case errors.As(err, &pe):
		msg = pe.Error()
	}
	return ipc.Response{Success: false, Message: msg, Data: data}
}

// decodeArgs maps the loosely typed JSON args onto a typed struct. Unknown
// keys are rejected.
func decodeArgs(in any, out any) error {
	if in == nil {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(in); err != nil {
		return &model.ValidationError{Field: "args", Reason: err.Error()}
	}
	return nil
}
