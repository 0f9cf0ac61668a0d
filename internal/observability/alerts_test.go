package observability_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/civicconnect/civic/internal/observability"
	"github.com/civicconnect/civic/jobs"
)

type alertRule struct {
	Alert       string            `yaml:"alert"`
	Expr        string            `yaml:"expr"`
	For         string            `yaml:"for"`
	Labels      map[string]string `yaml:"labels"`
	Annotations map[string]string `yaml:"annotations"`
}

type alertGroup struct {
	Name  string      `yaml:"name"`
	Rules []alertRule `yaml:"rules"`
}

type alertSpec struct {
	Groups []alertGroup `yaml:"groups"`
}

func loadAccessGroup(t *testing.T) alertGroup {
	t.Helper()
	path := filepath.Join("..", "..", "deploy", "prometheus", "alerts", "access.yml")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read alert file: %v", err)
	}
	var spec alertSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		t.Fatalf("failed to unmarshal alert file: %v", err)
	}
	for _, g := range spec.Groups {
		if g.Name == "access" {
			return g
		}
	}
	t.Fatal("access alert group missing")
	return alertGroup{}
}

func TestAccessAlertRules(t *testing.T) {
	group := loadAccessGroup(t)

	expected := map[string]string{
		"HighErrorRate":           "critical",
		"ForbiddenRoleSpike":      "warning",
		"VerificationMailBacklog": "warning",
		"SlowVerificationJobs":    "warning",
	}
	if len(group.Rules) != len(expected) {
		t.Fatalf("expected %d rules, got %d", len(expected), len(group.Rules))
	}
	runbook, err := os.ReadFile(filepath.Join("..", "..", "docs", "runbook-access.md"))
	if err != nil {
		t.Fatalf("failed to read runbook: %v", err)
	}

	for _, rule := range group.Rules {
		severity, ok := expected[rule.Alert]
		if !ok {
			t.Fatalf("unexpected rule %q", rule.Alert)
		}
		if rule.Labels["severity"] != severity {
			t.Fatalf("rule %s severity mismatch: %s", rule.Alert, rule.Labels["severity"])
		}
		if rule.Annotations["summary"] == "" || rule.Annotations["description"] == "" {
			t.Fatalf("rule %s must include summary and description annotations", rule.Alert)
		}
		if rule.Expr == "" || rule.For == "" {
			t.Fatalf("rule %s must define an expression and a hold duration", rule.Alert)
		}
		_, anchor, found := strings.Cut(rule.Annotations["runbook"], "#")
		if !found || !strings.Contains(strings.ToLower(string(runbook)), "## "+strings.ReplaceAll(anchor, "-", " ")) {
			t.Fatalf("rule %s runbook anchor %q has no matching section", rule.Alert, anchor)
		}
	}
}

var metricName = regexp.MustCompile(`civic_[a-z_]+`)

func TestAlertRulesReferenceExportedMetrics(t *testing.T) {
	metrics := observability.NewMetrics()
	jobMetrics := jobs.NewMetrics(metrics.Registerer())

	// Vector metrics only appear once a series exists.
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	metrics.Middleware(http.NotFoundHandler()).ServeHTTP(httptest.NewRecorder(), r)
	metrics.ObserveDecision("api", "forbidden_role")
	metrics.SessionExpired()
	metrics.MailEnqueued("mail:verification", errors.New("down"))
	failing := jobMetrics.Instrument(asynq.HandlerFunc(func(context.Context, *asynq.Task) error {
		return errors.New("relay refused")
	}))
	_ = failing.ProcessTask(context.Background(), asynq.NewTask(jobs.TaskTypeVerificationEmail, nil))

	gatherer, ok := metrics.Registerer().(prometheus.Gatherer)
	if !ok {
		t.Fatal("metrics registry is not a gatherer")
	}
	families, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	exported := make(map[string]bool, len(families))
	for _, f := range families {
		exported[f.GetName()] = true
	}

	for _, rule := range loadAccessGroup(t).Rules {
		for _, name := range metricName.FindAllString(rule.Expr, -1) {
			for _, suffix := range []string{"_bucket", "_count", "_sum"} {
				name = strings.TrimSuffix(name, suffix)
			}
			if !exported[name] {
				t.Fatalf("rule %s references unknown metric %s", rule.Alert, name)
			}
		}
	}
}
