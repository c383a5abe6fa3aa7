package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/openretro/questlog/internal/event"
	"github.com/openretro/questlog/internal/progression"
)

func eventFromStep(e *EventStep, ts time.Time) event.Event {
	return event.Event{
		TS:       ts,
		Source:   e.Source,
		Username: e.Username,
		Type:     e.Type,
		Payload:  e.Payload,
	}
}

func evaluate(ctx context.Context, engine *progression.Engine, result *Result, a Assertion) error {
	switch a.Type {
	case "stat":
		st, err := engine.UserState(ctx, a.Username)
		if err != nil {
			return err
		}
		var got int64
		switch a.Stat {
		case "xp":
			got = st.Stats.XP
		case "hp":
			got = st.Stats.HP
		case "gold":
			got = st.Stats.Gold
		case "level":
			got = st.Progress.Level
		case "achievement_level":
			got = st.Progress.AchievementLevel
		default:
			return fmt.Errorf("unknown stat %q", a.Stat)
		}
		return compare(got, a.Op, a.Value)

	case "metric":
		st, err := engine.UserState(ctx, a.Username)
		if err != nil {
			return err
		}
		if got := st.Progress.Metrics[a.Metric]; got != a.Value {
			return fmt.Errorf("metric %s = %d, expected %d", a.Metric, got, a.Value)
		}
		return nil

	case "gate":
		rec, ok, err := engine.Store().GetGate(ctx, a.Gate)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("gate %q not registered", a.Gate)
		}
		if rec.Completed != a.Completed {
			return fmt.Errorf("gate %s completed=%v, expected %v", a.Gate, rec.Completed, a.Completed)
		}
		return nil

	case "token":
		st, err := engine.UserState(ctx, a.Username)
		if err != nil {
			return err
		}
		if !st.HasToken(a.Token) {
			return fmt.Errorf("user %s does not hold token %q", a.Username, a.Token)
		}
		return nil

	case "achievement":
		st, err := engine.UserState(ctx, a.Username)
		if err != nil {
			return err
		}
		if !st.HasAchievement(a.Achievement) {
			return fmt.Errorf("user %s lacks achievement %q", a.Username, a.Achievement)
		}
		return nil

	case "can_proceed":
		got, err := engine.CanProceed(ctx)
		if err != nil {
			return err
		}
		if got != a.Bool {
			return fmt.Errorf("can_proceed=%v, expected %v", got, a.Bool)
		}
		return nil

	case "rules_fired":
		for _, want := range a.Rules {
			found := false
			for _, fired := range result.RulesFired {
				if fired == want {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("rule %q did not fire (fired: %v)", want, result.RulesFired)
			}
		}
		return nil

	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func compare(got int64, op string, want int64) error {
	switch op {
	case ">=", "":
		if got >= want {
			return nil
		}
	case "==", "=":
		if got == want {
			return nil
		}
	default:
		return fmt.Errorf("unknown comparison op %q", op)
	}
	return fmt.Errorf("got %d, expected %s %d", got, op, want)
}
