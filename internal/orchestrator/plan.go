package orchestrator

import (
	"context"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/arsredo/brf-coach/internal/model"
	"github.com/arsredo/brf-coach/internal/store"
)

// defaultMaxParallel caps concurrent agents per batch (GPU constraint).
const defaultMaxParallel = 4

// defaultPriority applies to agents without an explicit priority tier.
const defaultPriority = 4

// hintsPerAgent limits how many stored hints an assignment carries.
const hintsPerAgent = 5

// agentPriorities orders agents into execution tiers. Tier 1 agents
// produce the core financial statements that later tiers depend on.
var agentPriorities = map[string]int{
	"governance_agent":          1,
	"income_statement_agent":    1,
	"balance_sheet_agent":       1,
	"cash_flow_agent":           1,
	"property_agent":            2,
	"multi_year_overview_agent": 2,
	"maintenance_events_agent":  2,
	"note_loans_agent":          2,
	"note_depreciation_agent":   2,
	"note_costs_agent":          2,
	"note_revenue_agent":        2,
	"suppliers_vendors_agent":   2,
	"audit_report_agent":        3,
	"ratio_kpi_agent":           3,
	"member_info_agent":         3,
	"pledged_assets_agent":      3,
}

// agentExpectedFields lists the output fields each agent must produce
// for its output to count as usable.
var agentExpectedFields = map[string][]string{
	"governance_agent":          {"chairman", "board_members", "auditor_name", "org_number"},
	"income_statement_agent":    {"annual_fees", "total_revenues", "net_income"},
	"balance_sheet_agent":       {"total_assets", "total_equity", "total_liabilities", "cash_and_bank"},
	"cash_flow_agent":           {"operating_activities", "closing_cash"},
	"property_agent":            {"property_designation", "address", "apartments_count"},
	"suppliers_vendors_agent":   {"banking", "insurance", "utilities", "property_services"},
	"note_loans_agent":          {"loans", "total_loans", "weighted_avg_rate"},
	"multi_year_overview_agent": {"years", "net_revenue", "solidity_percent"},
}

// Planner turns sectionizer output into enriched agent assignments and
// priority-ordered execution batches.
type Planner struct {
	maxParallel int
	store       store.Store
}

// NewPlanner creates a planner. The store may be nil, in which case
// assignments carry no learning hints. maxParallel <= 0 selects the
// default.
func NewPlanner(st store.Store, maxParallel int) *Planner {
	if maxParallel <= 0 {
		maxParallel = defaultMaxParallel
	}
	return &Planner{maxParallel: maxParallel, store: st}
}

// EnhanceAssignments enriches a raw agent-to-sections mapping with page
// sets, extraction zones, priorities, expected fields, and stored
// learning hints.
func (p *Planner) EnhanceAssignments(ctx context.Context, raw map[string][]model.Section) map[string]model.Assignment {
	assignments := make(map[string]model.Assignment, len(raw))

	for agent, sections := range raw {
		pageSet := make(map[int]struct{})
		for _, s := range sections {
			start := s.StartPage
			if start == 0 {
				start = s.Page
			}
			if start == 0 {
				start = 1
			}
			end := s.EndPage
			if end < start {
				end = start
			}
			for page := start; page <= end; page++ {
				pageSet[page] = struct{}{}
			}
		}

		pages := make([]int, 0, len(pageSet))
		for page := range pageSet {
			pages = append(pages, page)
		}
		sort.Ints(pages)

		zone := model.PageRange{Start: 1, End: 1}
		if len(pages) > 0 {
			zone = model.PageRange{Start: pages[0], End: pages[len(pages)-1]}
		}

		a := model.Assignment{
			Agent:          agent,
			Sections:       sections,
			Pages:          pages,
			Zone:           zone,
			Priority:       priorityFor(agent),
			ExpectedFields: agentExpectedFields[agent],
		}
		if p.store != nil {
			hints, err := p.store.HintsForAgent(ctx, agent, hintsPerAgent)
			if err != nil {
				zap.L().Warn("orchestrator: loading hints failed",
					zap.String("agent_id", agent),
					zap.Error(err),
				)
			} else {
				a.LearningHints = hints
			}
		}
		assignments[agent] = a
	}

	return assignments
}

// ExecutionPlan groups assignments into batches: strictly ascending by
// priority, each batch at most maxParallel agents, agent order within a
// tier deterministic.
func (p *Planner) ExecutionPlan(assignments map[string]model.Assignment) [][]string {
	byPriority := make(map[int][]string)
	for agent, a := range assignments {
		byPriority[a.Priority] = append(byPriority[a.Priority], agent)
	}

	priorities := make([]int, 0, len(byPriority))
	for priority := range byPriority {
		priorities = append(priorities, priority)
	}
	sort.Ints(priorities)

	var batches [][]string
	for _, priority := range priorities {
		agents := byPriority[priority]
		sort.Strings(agents)
		for i := 0; i < len(agents); i += p.maxParallel {
			end := min(i+p.maxParallel, len(agents))
			batches = append(batches, agents[i:end])
		}
	}
	return batches
}

// RunBatch executes one batch concurrently, one goroutine per agent. The
// first error cancels the remaining agents in the batch.
func (p *Planner) RunBatch(ctx context.Context, batch []string, run func(ctx context.Context, agentID string) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, agentID := range batch {
		agentID := agentID
		g.Go(func() error {
			return run(gctx, agentID)
		})
	}
	return g.Wait()
}

// ExpectedFields returns the output fields required from an agent, nil
// for agents without a defined contract.
func ExpectedFields(agentID string) []string {
	return agentExpectedFields[agentID]
}

func priorityFor(agent string) int {
	if p, ok := agentPriorities[agent]; ok {
		return p
	}
	return defaultPriority
}
