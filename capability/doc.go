// Package capability provides ready-made speak capabilities: a
// function adapter and a scripted speaker for demos and tests. Real
// deployments implement orchestrator.SpeakCapability against their
// own agent runtime.
package capability
