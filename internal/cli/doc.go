// Package cli wires the pipeline stages into cobra commands.
//
// Each stage is a subcommand: event, jira, schedule, execute, cancel,
// report, summarize, list. The pipeline subcommand sequences several
// stages in one invocation against one shared run directory. External
// services (advisory source, issue tracker, execution backend, launch
// service) enter through the Deps struct so tests can inject fakes.
package cli
