package config

import "testing"

func TestProfileValid(t *testing.T) {
	for _, env := range []string{"development", "production", ""} {
		if err := Profile(env).Validate(); err != nil {
			t.Fatalf("profile %q invalid: %v", env, err)
		}
	}
}

func TestValidateRejectsPageSizeOverMaxChats(t *testing.T) {
	s := Profile("development")
	s.Limits.PageSize = s.Limits.MaxChats + 1
	if err := s.Validate(); err == nil {
		t.Fatal("expected pageSize > maxChats to be rejected")
	}
}

func TestValidateRejectsBatchOverMaxMessages(t *testing.T) {
	s := Profile("production")
	s.Limits.MessageBatchSize = s.Limits.MaxMessagesPerChat + 1
	if err := s.Validate(); err == nil {
		t.Fatal("expected messageBatchSize > maxMessagesPerChat to be rejected")
	}
}

func TestValidateRejectsNonPositive(t *testing.T) {
	s := Profile("production")
	s.Limits.MaxChats = 0
	if err := s.Validate(); err == nil {
		t.Fatal("expected zero maxChats to be rejected")
	}
}
