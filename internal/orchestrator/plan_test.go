package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arsredo/brf-coach/internal/model"
)

func testSections() map[string][]model.Section {
	return map[string][]model.Section{
		"governance_agent": {
			{Name: "Förvaltningsberättelse", Type: "text", StartPage: 3, EndPage: 8},
			{Name: "Styrelsen", Type: "subsection", Page: 4},
		},
		"income_statement_agent": {
			{Name: "Resultaträkning", Type: "table", StartPage: 9, EndPage: 10},
		},
		"balance_sheet_agent": {
			{Name: "Balansräkning", Type: "table", StartPage: 11, EndPage: 12},
		},
		"cash_flow_agent": {
			{Name: "Kassaflödesanalys", Type: "table", Page: 13},
		},
		"note_loans_agent": {
			{Name: "Noter", Type: "text", StartPage: 14, EndPage: 20},
		},
		"suppliers_vendors_agent": {
			{Name: "Leverantörer", Type: "list", Page: 28},
		},
		"audit_report_agent": {
			{Name: "Revisionsberättelse", Type: "text", StartPage: 29, EndPage: 30},
		},
	}
}

func TestEnhanceAssignments_PagesAndZones(t *testing.T) {
	p := NewPlanner(nil, 0)

	assignments := p.EnhanceAssignments(context.Background(), testSections())

	gov, ok := assignments["governance_agent"]
	require.True(t, ok)
	// Pages 3-8 from the range plus page 4 from the subsection, merged.
	assert.Equal(t, []int{3, 4, 5, 6, 7, 8}, gov.Pages)
	assert.Equal(t, model.PageRange{Start: 3, End: 8}, gov.Zone)
	assert.Equal(t, 1, gov.Priority)
	assert.Equal(t, []string{"chairman", "board_members", "auditor_name", "org_number"}, gov.ExpectedFields)

	suppliers := assignments["suppliers_vendors_agent"]
	assert.Equal(t, []int{28}, suppliers.Pages)
	assert.Equal(t, model.PageRange{Start: 28, End: 28}, suppliers.Zone)
	assert.Equal(t, 2, suppliers.Priority)
}

func TestEnhanceAssignments_UnknownAgentDefaults(t *testing.T) {
	p := NewPlanner(nil, 0)

	assignments := p.EnhanceAssignments(context.Background(), map[string][]model.Section{
		"mystery_agent": {{Name: "Okänt", Page: 5}},
	})

	a := assignments["mystery_agent"]
	assert.Equal(t, defaultPriority, a.Priority)
	assert.Empty(t, a.ExpectedFields)
}

func TestEnhanceAssignments_NoPagesFallsBackToPageOne(t *testing.T) {
	p := NewPlanner(nil, 0)

	assignments := p.EnhanceAssignments(context.Background(), map[string][]model.Section{
		"governance_agent": {{Name: "Styrelsen"}},
	})

	a := assignments["governance_agent"]
	assert.Equal(t, []int{1}, a.Pages)
	assert.Equal(t, model.PageRange{Start: 1, End: 1}, a.Zone)
}

func TestExecutionPlan_PriorityOrderAndBatchSize(t *testing.T) {
	p := NewPlanner(nil, 4)

	assignments := p.EnhanceAssignments(context.Background(), testSections())
	batches := p.ExecutionPlan(assignments)

	require.Len(t, batches, 3)
	// Tier 1: the four core statement agents fit one batch.
	assert.Equal(t, []string{"balance_sheet_agent", "cash_flow_agent", "governance_agent", "income_statement_agent"}, batches[0])
	// Tier 2, then tier 3.
	assert.Equal(t, []string{"note_loans_agent", "suppliers_vendors_agent"}, batches[1])
	assert.Equal(t, []string{"audit_report_agent"}, batches[2])
}

func TestExecutionPlan_SplitsOversizedTier(t *testing.T) {
	p := NewPlanner(nil, 2)

	assignments := p.EnhanceAssignments(context.Background(), testSections())
	batches := p.ExecutionPlan(assignments)

	for _, batch := range batches {
		assert.LessOrEqual(t, len(batch), 2)
	}
	// 4 tier-1 agents split into two batches of two.
	assert.Equal(t, []string{"balance_sheet_agent", "cash_flow_agent"}, batches[0])
	assert.Equal(t, []string{"governance_agent", "income_statement_agent"}, batches[1])
}

func TestRunBatch_RunsAllAgents(t *testing.T) {
	p := NewPlanner(nil, 4)

	var mu sync.Mutex
	seen := make(map[string]bool)

	err := p.RunBatch(context.Background(), []string{"a", "b", "c"}, func(_ context.Context, agentID string) error {
		mu.Lock()
		seen[agentID] = true
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, seen, 3)
}

func TestRunBatch_FirstErrorCancelsRest(t *testing.T) {
	p := NewPlanner(nil, 4)

	var canceled atomic.Bool
	err := p.RunBatch(context.Background(), []string{"fail", "slow"}, func(ctx context.Context, agentID string) error {
		if agentID == "fail" {
			return eris.New("gpu out of memory")
		}
		select {
		case <-ctx.Done():
			canceled.Store(true)
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return nil
		}
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "gpu out of memory")
	assert.True(t, canceled.Load(), "sibling agent sees cancellation")
}
