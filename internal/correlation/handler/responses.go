package handler

import (
	"time"

	"caresignal/internal/correlation"
)

type runRequest struct {
	WindowHours int `json:"window_hours"`
}

type ruleErrorResponse struct {
	RuleName string `json:"rule_name"`
	Error    string `json:"error"`
}

type eventSummaryResponse struct {
	RuleName string `json:"rule_name"`
	EventID  string `json:"event_id"`
	Severity string `json:"severity"`
}

type runResponse struct {
	SubjectID     string                 `json:"subject_id"`
	SubjectFound  bool                   `json:"subject_found"`
	WindowStart   time.Time              `json:"window_start"`
	WindowEnd     time.Time              `json:"window_end"`
	EventsCreated int                    `json:"events_created"`
	Events        []eventSummaryResponse `json:"events"`
	SkippedRules  []ruleErrorResponse    `json:"skipped_rules,omitempty"`
	FailedRules   []ruleErrorResponse    `json:"failed_rules,omitempty"`
}

func toRunResponse(result *correlation.EvaluationResult) runResponse {
	resp := runResponse{
		SubjectID:     result.SubjectID,
		SubjectFound:  result.SubjectFound,
		WindowStart:   result.WindowStart,
		WindowEnd:     result.WindowEnd,
		EventsCreated: result.EventsCreated,
		Events:        make([]eventSummaryResponse, 0, len(result.Events)),
	}
	for _, ev := range result.Events {
		resp.Events = append(resp.Events, eventSummaryResponse{
			RuleName: ev.RuleName,
			EventID:  ev.EventID.String(),
			Severity: ev.Severity,
		})
	}
	resp.SkippedRules = toRuleErrors(result.SkippedRules)
	resp.FailedRules = toRuleErrors(result.FailedRules)
	return resp
}

func toRuleErrors(errs []correlation.RuleError) []ruleErrorResponse {
	if len(errs) == 0 {
		return nil
	}
	out := make([]ruleErrorResponse, 0, len(errs))
	for _, re := range errs {
		out = append(out, ruleErrorResponse{RuleName: re.RuleName, Error: re.Err.Error()})
	}
	return out
}

type eventResponse struct {
	ID                      string         `json:"id"`
	SubjectID               string         `json:"subject_id"`
	RuleID                  string         `json:"rule_id"`
	RuleName                string         `json:"rule_name"`
	Severity                string         `json:"severity"`
	Confidence              float64        `json:"confidence"`
	ReasoningText           string         `json:"reasoning_text"`
	ReasoningDetail         map[string]any `json:"reasoning_detail"`
	WindowStart             time.Time      `json:"window_start"`
	WindowEnd               time.Time      `json:"window_end"`
	ContributingSignalCount int            `json:"contributing_signal_count"`
	RequiresHumanAction     bool           `json:"requires_human_action"`
	CreatedAt               time.Time      `json:"created_at"`
}

func toEventResponse(ev correlation.CompoundEvent) eventResponse {
	return eventResponse{
		ID:                      ev.ID.String(),
		SubjectID:               ev.SubjectID,
		RuleID:                  ev.RuleID.String(),
		RuleName:                ev.RuleName,
		Severity:                ev.Severity,
		Confidence:              ev.Confidence,
		ReasoningText:           ev.ReasoningText,
		ReasoningDetail:         ev.ReasoningDetail,
		WindowStart:             ev.WindowStart,
		WindowEnd:               ev.WindowEnd,
		ContributingSignalCount: ev.ContributingSignalCount,
		RequiresHumanAction:     ev.RequiresHumanAction,
		CreatedAt:               ev.CreatedAt,
	}
}

type contributionResponse struct {
	CompoundEventID string         `json:"compound_event_id"`
	SourceDomain    string         `json:"source_domain"`
	SourceTable     string         `json:"source_table"`
	SourceID        string         `json:"source_id"`
	SignalType      string         `json:"signal_type"`
	SignalTimestamp time.Time      `json:"signal_timestamp"`
	Snapshot        map[string]any `json:"signal_snapshot"`
}

func toContributionResponse(c correlation.SignalContribution) contributionResponse {
	return contributionResponse{
		CompoundEventID: c.CompoundEventID.String(),
		SourceDomain:    string(c.Domain),
		SourceTable:     c.Source.Table,
		SourceID:        c.Source.ID,
		SignalType:      c.SignalType,
		SignalTimestamp: c.SignalTimestamp,
		Snapshot:        c.Snapshot,
	}
}
