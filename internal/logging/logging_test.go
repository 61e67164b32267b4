package logging_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/goliatone/go-formflow/internal/logging"
)

func TestNew_JSONFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log, err := logging.New(logging.Options{Level: "debug", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	log.WithField("field", "State").Debug("options fetched")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode entry %q: %v", buf.String(), err)
	}
	if entry["msg"] != "options fetched" || entry["field"] != "State" || entry["level"] != "debug" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestNew_LevelFilters(t *testing.T) {
	t.Parallel()

	log, err := logging.New(logging.Options{Level: "warn"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	hook := test.NewLocal(log)
	log.Info("dropped")
	log.Warn("kept")

	if len(hook.Entries) != 1 || hook.LastEntry().Level != logrus.WarnLevel {
		t.Fatalf("entries = %v", hook.AllEntries())
	}
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	if _, err := logging.New(logging.Options{Level: "loud"}); err == nil {
		t.Fatalf("expected level error")
	}
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil || !strings.Contains(err.Error(), "xml") {
		t.Fatalf("expected format error, got %v", err)
	}
}
