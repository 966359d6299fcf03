package store

import (
	"testing"
	"time"
)

func TestInstanceValidate(t *testing.T) {
	tests := []struct {
		name          string
		inst          AgentInstance
		remoteEnabled bool
		wantErr       bool
	}{
		{
			name:          "openai with key",
			inst:          AgentInstance{Provider: ProviderOpenAI, APIKey: "sk-x", AgentType: AgentTypeOneShot},
			remoteEnabled: false,
		},
		{
			name:          "openai without key",
			inst:          AgentInstance{Provider: ProviderOpenAI, AgentType: AgentTypeOneShot},
			remoteEnabled: false,
			wantErr:       true,
		},
		{
			name:          "bedrock without lambda",
			inst:          AgentInstance{Provider: ProviderBedrock, AgentType: AgentTypeOneShot},
			remoteEnabled: true,
			wantErr:       true,
		},
		{
			name:          "bedrock with lambda",
			inst:          AgentInstance{Provider: ProviderBedrock, UseLambda: true, AgentType: AgentTypeOneShot},
			remoteEnabled: true,
		},
		{
			name:          "lambda requested while remote disabled",
			inst:          AgentInstance{Provider: ProviderOpenAI, APIKey: "sk-x", UseLambda: true, AgentType: AgentTypeOneShot},
			remoteEnabled: false,
			wantErr:       true,
		},
		{
			name:          "unknown provider",
			inst:          AgentInstance{Provider: "MISTRAL", APIKey: "x", AgentType: AgentTypeChat},
			remoteEnabled: false,
			wantErr:       true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.inst.Validate(tt.remoteEnabled)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCalcNext(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	last := now.Add(-2 * time.Hour)

	tests := []struct {
		name string
		task AgentTask
		want *time.Time
	}{
		{"hourly from last", AgentTask{ScheduleType: ScheduleHourly, LastExecutedAt: &last}, ptr(last.Add(time.Hour))},
		{"hourly never run", AgentTask{ScheduleType: ScheduleHourly}, ptr(now.Add(time.Hour))},
		{"daily", AgentTask{ScheduleType: ScheduleDaily, LastExecutedAt: &last}, ptr(last.Add(24 * time.Hour))},
		{"weekly", AgentTask{ScheduleType: ScheduleWeekly, LastExecutedAt: &last}, ptr(last.Add(7 * 24 * time.Hour))},
		{"monthly", AgentTask{ScheduleType: ScheduleMonthly, LastExecutedAt: &last}, ptr(last.Add(30 * 24 * time.Hour))},
		{"custom interval", AgentTask{ScheduleType: ScheduleCustomInterval, IntervalMinutes: 45, LastExecutedAt: &last}, ptr(last.Add(45 * time.Minute))},
		{"manual", AgentTask{ScheduleType: ScheduleManual, LastExecutedAt: &last}, nil},
		{"once", AgentTask{ScheduleType: ScheduleOnce}, nil},
		{"agent", AgentTask{ScheduleType: ScheduleAgent}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.task.CalcNext(now)
			switch {
			case got == nil && tt.want != nil:
				t.Errorf("CalcNext() = nil, want %v", tt.want)
			case got != nil && tt.want == nil:
				t.Errorf("CalcNext() = %v, want nil", got)
			case got != nil && !got.Equal(*tt.want):
				t.Errorf("CalcNext() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsReady(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)
	max := 3

	tests := []struct {
		name string
		task AgentTask
		want bool
	}{
		{"due active task", AgentTask{Status: TaskActive, NextExecutionAt: &past}, true},
		{"not yet due", AgentTask{Status: TaskActive, NextExecutionAt: &future}, false},
		{"paused", AgentTask{Status: TaskPaused, NextExecutionAt: &past}, false},
		{"no next execution", AgentTask{Status: TaskActive}, false},
		{"under cap", AgentTask{Status: TaskActive, NextExecutionAt: &past, MaxExecutions: &max, ExecutionCount: 2}, true},
		{"at cap", AgentTask{Status: TaskActive, NextExecutionAt: &past, MaxExecutions: &max, ExecutionCount: 3}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.task.IsReady(now); got != tt.want {
				t.Errorf("IsReady() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTaskValidate(t *testing.T) {
	base := AgentTask{Name: "t", AgentInstanceID: "i", ScheduleType: ScheduleManual}
	if err := base.Validate(); err != nil {
		t.Errorf("valid manual task rejected: %v", err)
	}

	custom := base
	custom.ScheduleType = ScheduleCustomInterval
	if err := custom.Validate(); err == nil {
		t.Error("custom_interval without interval_minutes should be rejected")
	}
	custom.IntervalMinutes = 15
	if err := custom.Validate(); err != nil {
		t.Errorf("valid custom_interval task rejected: %v", err)
	}

	agent := base
	agent.ScheduleType = ScheduleAgent
	if err := agent.Validate(); err == nil {
		t.Error("agent schedule without triggered_by_task_id should be rejected")
	}
	agent.TriggeredByTaskID = "parent"
	if err := agent.Validate(); err != nil {
		t.Errorf("valid agent task rejected: %v", err)
	}
	at := time.Now()
	agent.NextExecutionAt = &at
	if err := agent.Validate(); err == nil {
		t.Error("agent schedule with next_execution_at should be rejected")
	}
}

func TestSecretMaskedValue(t *testing.T) {
	s := ProjectEnvironmentSecret{Value: "sk-abcdef1234"}
	if got := s.MaskedValue(); got != "****1234" {
		t.Errorf("MaskedValue() = %q, want ****1234", got)
	}
	short := ProjectEnvironmentSecret{Value: "abc"}
	if got := short.MaskedValue(); got != "****" {
		t.Errorf("MaskedValue() = %q, want ****", got)
	}
}

func TestSecretKeyPattern(t *testing.T) {
	valid := ProjectEnvironmentSecret{Key: "API_TOKEN_2", Value: "x"}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid key rejected: %v", err)
	}
	for _, key := range []string{"lower_case", "2STARTS_WITH_DIGIT", "HAS-DASH", ""} {
		s := ProjectEnvironmentSecret{Key: key, Value: "x"}
		if err := s.Validate(); err == nil {
			t.Errorf("key %q should be rejected", key)
		}
	}
}

func ptr(t time.Time) *time.Time { return &t }
