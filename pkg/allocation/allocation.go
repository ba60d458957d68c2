// Package allocation implements the pure assignment algorithm that maps a
// desired agent count for one service type onto the existing pods of that
// service type. It performs no I/O, grounded on
// original_source/Controller/optimizer.py, restructured around a
// container/heap priority queue in place of the original's repeated full
// re-sort (spec design note: "unstable sort with idx = 0 restart").
package allocation

import (
	"container/heap"

	arhav1alpha1 "arha-controller/api/v1alpha1"
)

// Status is the result of one allocation attempt.
type Status string

const (
	Success Status = "success"
	Fail    Status = "fail"
)

// Strategy selects which allocation algorithm Allocate runs, chosen at
// startup via OPTIMIZER_FUNCTION.
type Strategy string

const (
	StrategyOptimize     Strategy = "optimize"
	StrategyUniform      Strategy = "uniform"
	StrategyMostRemaining Strategy = "most_remaining"
)

// entry is the allocator's local working copy of one Service: the domain
// struct plus scratch fields that never get persisted (spec design note:
// "dict-based scratch fields on Service").
type entry struct {
	svc            *arhav1alpha1.Service
	originalIndex  int
	remainWorkload float64
	predFreq       float64
}

// Allocate runs the selected strategy against serviceList for serviceType,
// targeting desiredCount total agents. It returns (status, newList) with
// newList in the same order and identity as serviceList; only entries
// matching serviceType have CurrentConnection/CurrentFrequency mutated.
func Allocate(strategy Strategy, serviceType string, desiredCount int, serviceList []arhav1alpha1.Service) (Status, []arhav1alpha1.Service) {
	switch strategy {
	case StrategyUniform:
		return uniform(serviceType, desiredCount, serviceList)
	case StrategyMostRemaining:
		return mostRemaining(serviceType, desiredCount, serviceList)
	default:
		return optimize(serviceType, desiredCount, serviceList)
	}
}

func matchingEntries(serviceType string, serviceList []arhav1alpha1.Service) ([]arhav1alpha1.Service, []entry) {
	out := make([]arhav1alpha1.Service, len(serviceList))
	copy(out, serviceList)

	entries := make([]entry, 0, len(out))
	for i := range out {
		if out[i].ServiceType != serviceType {
			continue
		}
		out[i].CurrentConnection = 0
		entries = append(entries, entry{svc: &out[i], originalIndex: i})
	}
	return out, entries
}

// optimize is the workload-aware strategy: spec.md §4.1, steps 1-5.
func optimize(serviceType string, desiredCount int, serviceList []arhav1alpha1.Service) (Status, []arhav1alpha1.Service) {
	out, entries := matchingEntries(serviceType, serviceList)
	if len(entries) == 0 {
		return Fail, serviceList
	}

	for i := range entries {
		e := &entries[i]
		e.remainWorkload = e.svc.WorkloadLimit - float64(e.svc.CurrentConnection)*e.svc.FrequencyLimit.Default
		e.predFreq = e.svc.WorkloadLimit / float64(e.svc.CurrentConnection+1)
	}

	placed := 0

	// Phase A: default-frequency placement, greatest remainWorkload first.
	pq := newMaxHeap(entries, byRemainWorkload)
	phaseAPlaced := 0
	for placed < desiredCount && pq.Len() > 0 {
		e := pq.Peek()
		if e.remainWorkload < e.svc.FrequencyLimit.Default {
			break
		}
		e = heap.Pop(pq).(*entry)
		e.svc.CurrentConnection++
		e.svc.CurrentFrequency = e.svc.FrequencyLimit.Default
		e.remainWorkload -= e.svc.FrequencyLimit.Default
		e.predFreq = e.svc.WorkloadLimit / float64(e.svc.CurrentConnection+1)
		heap.Push(pq, e)
		placed++
		phaseAPlaced++
	}

	if phaseAPlaced == 0 {
		return Fail, serviceList
	}

	status := Success

	// Phase B: degraded placement, greatest predFreq first.
	pq2 := newMaxHeap(entries, byPredFreq)
	for placed < desiredCount && pq2.Len() > 0 {
		e := heap.Pop(pq2).(*entry)
		e.svc.CurrentConnection++
		e.svc.CurrentFrequency = e.svc.WorkloadLimit / float64(e.svc.CurrentConnection)
		e.remainWorkload = 0
		e.predFreq = e.svc.WorkloadLimit / float64(e.svc.CurrentConnection+1)
		heap.Push(pq2, e)
		placed++
		if e.svc.CurrentFrequency < e.svc.FrequencyLimit.Minimum {
			status = Fail
		}
	}

	return status, out
}

// uniform resets matching entries to the default frequency and round-robins
// connections across them.
func uniform(serviceType string, desiredCount int, serviceList []arhav1alpha1.Service) (Status, []arhav1alpha1.Service) {
	out, entries := matchingEntries(serviceType, serviceList)
	if len(entries) == 0 {
		return Fail, serviceList
	}
	for i := range entries {
		entries[i].svc.CurrentFrequency = entries[i].svc.FrequencyLimit.Default
	}
	for placed, idx := 0, 0; placed < desiredCount; placed, idx = placed+1, idx+1 {
		entries[idx%len(entries)].svc.CurrentConnection++
	}
	return Success, out
}

// mostRemaining greedily assigns to whichever matching entry has the
// greatest remaining workload, always at the default frequency.
func mostRemaining(serviceType string, desiredCount int, serviceList []arhav1alpha1.Service) (Status, []arhav1alpha1.Service) {
	out, entries := matchingEntries(serviceType, serviceList)
	if len(entries) == 0 {
		return Fail, serviceList
	}
	for i := range entries {
		e := &entries[i]
		e.svc.CurrentFrequency = e.svc.FrequencyLimit.Default
		e.remainWorkload = e.svc.WorkloadLimit
	}

	pq := newMaxHeap(entries, byRemainWorkload)
	for placed := 0; placed < desiredCount && pq.Len() > 0; placed++ {
		e := heap.Pop(pq).(*entry)
		e.svc.CurrentConnection++
		e.remainWorkload -= e.svc.FrequencyLimit.Default
		heap.Push(pq, e)
	}
	return Success, out
}
