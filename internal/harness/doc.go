// Package harness runs scripted sessions against a fresh in-memory store.
//
// A scenario is a YAML file listing the rows to seed and a sequence of steps
// (login, signup, logout, refresh, add, take, stats, overview). Each step is
// executed through the same auth, validate and medication components the CLI
// and HTTP API use, with a manual clock that advances one minute per step and
// sequential ids ("id-1", "id-2", ...), so the resulting trace is
// deterministic and can be compared against a golden file.
//
// Example scenario:
//
//	name: adherence
//	description: A patient adds a medication and takes it.
//	steps:
//	  - action: login
//	    args: {email: patient@example.com, password: password123, role: patient}
//	  - action: add
//	    args: {name: Aspirin, dosage: 100mg, frequency: Once daily}
//	  - action: take
//	    args: {id: $last}
//	  - action: stats
//	    expect:
//	      result: {taken: 3, total: 5, percentage: 60}
//
// A step without expect must succeed. expect.error names the error code the
// step must fail with; expect.result is matched as a subset of the step's
// JSON result.
package harness
