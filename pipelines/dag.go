package pipelines

import (
	"fmt"
	"sort"

	"github.com/fieldryand/goflow/v2"
)

// JobGraph is the task graph of a pipeline's goflow job
type JobGraph struct {
	Pipeline string      `json:"pipeline"`
	Job      string      `json:"job"`
	Schedule string      `json:"schedule,omitempty"`
	Tasks    []GraphTask `json:"tasks"`
}

// GraphTask is one node of a JobGraph
type GraphTask struct {
	Name       string   `json:"name"`
	Retries    int      `json:"retries,omitempty"`
	Downstream []string `json:"downstream"`
}

// DescribeJob builds the job of the named pipeline and returns its tasks and edges
func DescribeJob(name string, state *State) (*JobGraph, error) {
	p, err := New(name, state)
	if err != nil {
		return nil, err
	}
	j := p.Job()()
	if j == nil {
		return nil, fmt.Errorf("pipeline %q has no job", name)
	}
	return graphOf(name, j), nil
}

func graphOf(pipeline string, j *goflow.Job) *JobGraph {
	g := &JobGraph{
		Pipeline: pipeline,
		Job:      j.Name,
		Schedule: j.Schedule,
		Tasks:    make([]GraphTask, 0, len(j.Tasks)),
	}

	names := make([]string, 0, len(j.Tasks))
	for name := range j.Tasks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		downstream := append([]string{}, j.Dag[name]...)
		sort.Strings(downstream)
		g.Tasks = append(g.Tasks, GraphTask{
			Name:       name,
			Retries:    j.Tasks[name].Retries,
			Downstream: downstream,
		})
	}
	return g
}
