package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	inferenceStepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atomspace_inference_steps_total",
		Help: "Inference steps recorded, by truth-value rule.",
	}, []string{"rule"})

	chainingPassesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "atomspace_chaining_passes_total",
		Help: "Forward chaining passes executed.",
	})

	chainingRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atomspace_chaining_runs_total",
		Help: "Chaining runs by direction and final status.",
	}, []string{"direction", "status"})

	abandonedBranchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atomspace_abandoned_branches_total",
		Help: "Backward chaining branches abandoned, by reason.",
	}, []string{"reason"})

	attentionDecaysTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "atomspace_attention_decays_total",
		Help: "Attention decay sweeps applied.",
	})
)
