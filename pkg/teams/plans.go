package teams

import "strings"

var planLimits = map[Plan]int64{
	PlanFree: 10 * GiB,
	PlanPlus: 50 * GiB,
	PlanPro:  200 * GiB,
}

// LimitForPlan returns the storage limit in bytes. Unknown plans get the free limit.
func LimitForPlan(p Plan) int64 {
	if limit, ok := planLimits[p]; ok {
		return limit
	}
	return planLimits[PlanFree]
}

// PriceTable maps billing provider price ids to plans
type PriceTable struct {
	byPrice map[string]Plan
	byPlan  map[Plan]string
}

// NewPriceTable builds a table from plan to price id. Empty price ids are skipped.
func NewPriceTable(prices map[Plan]string) *PriceTable {
	t := &PriceTable{byPrice: map[string]Plan{}, byPlan: map[Plan]string{}}
	for plan, price := range prices {
		price = strings.TrimSpace(price)
		if price == "" || plan == PlanFree {
			continue
		}
		t.byPrice[price] = plan
		t.byPlan[plan] = price
	}
	return t
}

// PlanForPrice resolves a price id to a plan and its limit.
// Unknown or empty price ids resolve to the free plan.
func (t *PriceTable) PlanForPrice(priceID string) (Plan, int64) {
	if plan, ok := t.byPrice[strings.TrimSpace(priceID)]; ok {
		return plan, LimitForPlan(plan)
	}
	return PlanFree, LimitForPlan(PlanFree)
}

// PriceForPlan returns the configured price id for a paid plan
func (t *PriceTable) PriceForPlan(p Plan) (string, bool) {
	price, ok := t.byPlan[p]
	return price, ok
}
