package config

type WorkerKeyStruct struct {
	ScoringReconcileQueue string
	ScoringDeadLetter     string
}

var WorkerKey = &WorkerKeyStruct{
	ScoringReconcileQueue: "scoring_reconcile_queue",
	ScoringDeadLetter:     "scoring_reconcile_dead",
}
