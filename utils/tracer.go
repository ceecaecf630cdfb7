package utils

import (
	"github.com/Luismorlan/beautyland/utils/dotenv"
	Logger "github.com/Luismorlan/beautyland/utils/log"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

func datadogEnv() string {
	if dotenv.IsProdEnv() {
		return "production"
	}
	return "development"
}

// StartTracer starts the Datadog tracer for service. Spans started before it,
// or without it, go to a no-op tracer.
func StartTracer(service string) {
	tracer.Start(
		tracer.WithService(service),
		tracer.WithEnv(datadogEnv()),
	)
	Logger.Log.WithField("env", datadogEnv()).Info("tracer initialized")
}

// Stop tracer, OK to be closed multiple times
func CloseTracer() {
	tracer.Stop()
}
