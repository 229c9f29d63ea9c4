// Package dispatch implements the outbound send scheduler: the in-memory
// structures that decide which pending recipient goes to which outbox next.
//
// The shape is a three-level fan-in. An Orchestrator owns one TenantTaskMap
// per tenant; a TenantTaskMap owns one GroupTask per active campaign, in
// registration order; a GroupTask owns the campaign's item store. Sender
// workers call Orchestrator.ClaimNext and Orchestrator.ReportOutcome and
// never touch the inner layers.
//
// Claiming is lock-free at the item level: every item slot carries an atomic
// state word and the Pending→Claimed transition is a single compare-and-swap,
// so workers racing on the same campaign can never claim the same item twice.
// The slow delivery call happens entirely outside this package.
package dispatch
