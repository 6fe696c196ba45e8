package job

import "go.uber.org/fx"

// Module provides the job definitions and the Runner. It expects
// DefinitionBytes to be supplied.
var Module = fx.Module("job",
	fx.Provide(
		LoadDefinitions,
		NewRunner,
		provideLoggingListener,
	),
)
