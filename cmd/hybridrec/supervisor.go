package main

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
)

// supervisorTree 两层：data（快照刷新、反馈投递）与 api（HTTP）。
// 某一层反复失败时只在该层内退避重启。
type supervisorTree struct {
	root *suture.Supervisor
	data *suture.Supervisor
	api  *suture.Supervisor
}

func newSupervisorTree(logger zerolog.Logger, shutdownTimeout time.Duration) *supervisorTree {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	spec := suture.Spec{
		EventHook:        eventHook(logger),
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          shutdownTimeout,
	}
	t := &supervisorTree{
		root: suture.New("hybridrec", spec),
		data: suture.New("data-layer", spec),
		api:  suture.New("api-layer", spec),
	}
	t.root.Add(t.data)
	t.root.Add(t.api)
	return t
}

func (t *supervisorTree) addData(svc suture.Service) { t.data.Add(svc) }
func (t *supervisorTree) addAPI(svc suture.Service)  { t.api.Add(svc) }

func (t *supervisorTree) serve(ctx context.Context) error { return t.root.Serve(ctx) }

func (t *supervisorTree) unstopped() []string {
	report, err := t.root.UnstoppedServiceReport()
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(report))
	for _, svc := range report {
		names = append(names, svc.Name)
	}
	return names
}

func eventHook(logger zerolog.Logger) suture.EventHook {
	return func(e suture.Event) {
		ev := logger.Warn()
		if e.Type() == suture.EventTypeResume {
			ev = logger.Info()
		}
		ev.Fields(e.Map()).Msg(e.String())
	}
}
