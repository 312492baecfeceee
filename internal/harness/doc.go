// Package harness runs reconciliation scenarios against fresh in-memory
// stores and records a deterministic trace of every step.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	modules:                 # optional, defaults to the built-in product module
//	  - name: product
//	    builtin: product
//	events:
//	  - stream: product-42
//	    type: Created
//	    payload: { name: Widget, price: 10, stock: 5 }
//	documents:
//	  - id: "42"
//	    doc: { name: Widget, price: 10, stock: 4 }
//	steps:
//	  - op: check
//	    id: "42"
//	    expect:
//	      match: false
//	      discrepancies: [status, stock]
//	assertions:
//	  - type: record
//	    id: "42"
//	    expect: { stock: 5 }
//
// Steps run through the module registry exactly as the CLI and HTTP API do.
// Event ids come from a sequence generator and store timestamps from a
// deterministic clock starting at testutil.Epoch, one second per write, so
// the same scenario always yields the same trace. RunWithGolden compares that
// trace with testdata/golden/{name}.golden.
//
// # Assertion Types
//
//   - record: a read-model record holds the expected values (subset match)
//   - no_record: no read-model record exists for the id
//   - trace_count: an operation ran exactly Count times
//   - notification_count: exactly Count notifications of Kind were published
package harness
