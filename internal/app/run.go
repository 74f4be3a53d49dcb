package app

import (
	"context"

	"go.uber.org/fx"
)

// Run starts the stage, waits for it to finish or for a signal, stops it
// and returns the exit code together with the stage error.
func Run(stage fx.Option) (int, error) {
	var out *Outcome
	a := fx.New(stage, fx.WithLogger(EventLogger), fx.Populate(&out))
	if err := a.Err(); err != nil {
		return 1, err
	}

	startCtx, cancel := context.WithTimeout(context.Background(), a.StartTimeout())
	defer cancel()
	if err := a.Start(startCtx); err != nil {
		return 1, err
	}

	sig := <-a.Wait()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), a.StopTimeout())
	defer cancelStop()
	if err := a.Stop(stopCtx); err != nil {
		return 1, err
	}
	if err := out.Err(); err != nil {
		return 1, err
	}
	return sig.ExitCode, nil
}
