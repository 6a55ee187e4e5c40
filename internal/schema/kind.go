package schema

// Kind is the closed set of resource kinds the server understands.
type Kind int

const (
	KindUnknown Kind = iota
	KindPipeline
	KindTask
	KindClusterTask
	KindPipelineRun
	KindTaskRun
	KindTriggerTemplate
	KindTriggerBinding
	KindEventListener
)

var kindNames = map[Kind]string{
	KindPipeline:        "Pipeline",
	KindTask:            "Task",
	KindClusterTask:     "ClusterTask",
	KindPipelineRun:     "PipelineRun",
	KindTaskRun:         "TaskRun",
	KindTriggerTemplate: "TriggerTemplate",
	KindTriggerBinding:  "TriggerBinding",
	KindEventListener:   "EventListener",
}

// Kinds lists every known kind in declaration order.
func Kinds() []Kind {
	return []Kind{
		KindPipeline, KindTask, KindClusterTask, KindPipelineRun,
		KindTaskRun, KindTriggerTemplate, KindTriggerBinding, KindEventListener,
	}
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

func (k Kind) Known() bool {
	return k != KindUnknown
}

// APIVersion is the apiVersion a new resource of this kind is written with.
func (k Kind) APIVersion() string {
	switch k {
	case KindTriggerTemplate, KindTriggerBinding, KindEventListener:
		return "triggers.tekton.dev/v1beta1"
	case KindClusterTask:
		return "tekton.dev/v1beta1"
	default:
		return "tekton.dev/v1"
	}
}

func ParseKind(s string) Kind {
	for k, name := range kindNames {
		if name == s {
			return k
		}
	}
	return KindUnknown
}

// KindDocs holds the hover text for each kind.
var KindDocs = map[Kind]string{
	KindPipeline:        "**Pipeline**\n\nA collection of Tasks executed in a defined order. Tasks run concurrently unless ordered with `runAfter` or by consuming another task's results.",
	KindTask:            "**Task**\n\nA sequence of Steps run in order inside a single Pod. Tasks declare params, workspaces and results.",
	KindClusterTask:     "**ClusterTask**\n\nA cluster-scoped Task, usable from any namespace. Deprecated in favour of resolvers.",
	KindPipelineRun:     "**PipelineRun**\n\nInstantiates and executes a Pipeline with concrete params and workspace bindings.",
	KindTaskRun:         "**TaskRun**\n\nInstantiates and executes a single Task.",
	KindTriggerTemplate: "**TriggerTemplate**\n\nTemplates the resources (usually PipelineRuns) a trigger creates.",
	KindTriggerBinding:  "**TriggerBinding**\n\nExtracts fields from an event payload into params for a TriggerTemplate.",
	KindEventListener:   "**EventListener**\n\nA sink that receives events and connects bindings, interceptors and templates.",
}
