package schema

func str(name, desc string) *Field {
	return &Field{Name: name, Description: desc, Type: TypeString}
}

func boolean(name, desc string) *Field {
	return &Field{Name: name, Description: desc, Type: TypeBoolean}
}

func integer(name, desc string) *Field {
	return &Field{Name: name, Description: desc, Type: TypeInteger}
}

func anyValue(name, desc string) *Field {
	return &Field{Name: name, Description: desc, Type: TypeAny}
}

func enum(name, desc string, values ...string) *Field {
	return &Field{Name: name, Description: desc, Type: TypeString, Values: values}
}

// obj declares an object field; a nil group means free-form content.
func obj(name, desc string, fields *Group) *Field {
	if fields == nil {
		fields = &Group{Name: name, Open: true}
	}
	return &Field{Name: name, Description: desc, Type: TypeObject, Fields: fields}
}

// list declares an array; items is nil for arrays of scalars.
func list(name, desc string, items *Group) *Field {
	return &Field{Name: name, Description: desc, Type: TypeArray, Items: items}
}

func required(f *Field) *Field {
	f.Required = true
	return f
}

func recommended(f *Field) *Field {
	f.Recommended = true
	return f
}

func nonEmpty(f *Field, msg string) *Field {
	f.NonEmpty = true
	f.EmptyMessage = msg
	return f
}

func group(name string, fields ...*Field) *Group {
	return &Group{Name: name, Fields: fields}
}

var (
	metadataGroup = group("metadata",
		&Field{
			Name:        "name",
			Description: "Resource name, unique per kind and namespace.",
			Type:        TypeString,
			Required:    true,
			NonEmpty:    true,
			SatisfiedBy: []string{"generateName"},
		},
		str("namespace", "Namespace the resource lives in."),
		str("generateName", "Prefix used by the API server to generate a unique name."),
		obj("labels", "Key/value labels used to select and organize resources.", nil),
		obj("annotations", "Arbitrary non-identifying metadata.", nil),
	)

	paramSpecGroup = group("ParamSpec",
		nonEmpty(required(str("name", "Parameter name.")), ""),
		enum("type", "Parameter type: `string` (default), `array` or `object`.", "string", "array", "object"),
		str("description", "Human-readable description of the parameter."),
		anyValue("default", "Value used when the parameter is not provided."),
		obj("properties", "Keys of an `object` parameter.", nil),
		list("enum", "Allowed values of a `string` parameter.", nil),
	)

	paramGroup = group("Param",
		nonEmpty(required(str("name", "Name of the parameter being set.")), ""),
		required(anyValue("value", "Value passed to the parameter; may use `$(params.x)` and `$(tasks.t.results.r)` substitutions.")),
	)

	workspaceDeclGroup = group("WorkspaceDeclaration",
		nonEmpty(required(str("name", "Workspace name.")), ""),
		str("description", "Human-readable description of the workspace."),
		str("mountPath", "Path the workspace is mounted at; defaults to `/workspace/<name>`."),
		boolean("readOnly", "Mount the workspace read-only."),
		boolean("optional", "The workspace may be omitted by runs."),
	)

	pipelineWorkspaceDeclGroup = group("PipelineWorkspaceDeclaration",
		nonEmpty(required(str("name", "Workspace name.")), ""),
		str("description", "Human-readable description of the workspace."),
		boolean("optional", "The workspace may be omitted by runs."),
	)

	workspaceTaskBindingGroup = group("WorkspacePipelineTaskBinding",
		nonEmpty(required(str("name", "Workspace name declared by the task.")), ""),
		str("workspace", "Pipeline workspace bound to it."),
		str("subPath", "Directory inside the pipeline workspace to expose."),
	)

	workspaceBindingGroup = group("WorkspaceBinding",
		nonEmpty(required(str("name", "Workspace name declared by the Pipeline or Task.")), ""),
		str("subPath", "Directory inside the volume to expose."),
		obj("emptyDir", "Back the workspace with an emptyDir volume.", nil),
		obj("persistentVolumeClaim", "Back the workspace with an existing PersistentVolumeClaim.", nil),
		obj("volumeClaimTemplate", "Create a PersistentVolumeClaim per run from this template.", nil),
		obj("configMap", "Back the workspace with a ConfigMap.", nil),
		obj("secret", "Back the workspace with a Secret.", nil),
		obj("projected", "Back the workspace with a projected volume.", nil),
		obj("csi", "Back the workspace with a CSI volume.", nil),
	)

	taskResultGroup = group("TaskResult",
		nonEmpty(required(str("name", "Result name; written to `$(results.<name>.path)`.")), ""),
		enum("type", "Result type: `string` (default), `array` or `object`.", "string", "array", "object"),
		str("description", "Human-readable description of the result."),
		obj("properties", "Keys of an `object` result.", nil),
	)

	pipelineResultGroup = group("PipelineResult",
		nonEmpty(required(str("name", "Result name.")), ""),
		enum("type", "Result type: `string` (default), `array` or `object`.", "string", "array", "object"),
		str("description", "Human-readable description of the result."),
		required(anyValue("value", "Value of the result, usually `$(tasks.<task>.results.<result>)`.")),
	)

	envVarGroup = group("EnvVar",
		nonEmpty(required(str("name", "Environment variable name.")), ""),
		str("value", "Literal value."),
		obj("valueFrom", "Source for the value (secret, configMap, field reference).", nil),
	)

	volumeMountGroup = group("VolumeMount",
		nonEmpty(required(str("name", "Name of the volume to mount.")), ""),
		required(str("mountPath", "Path inside the container.")),
		boolean("readOnly", "Mount read-only."),
		str("subPath", "Path inside the volume."),
	)

	stepGroup = group("Step",
		str("name", "Step name, unique within the Task."),
		str("image", "Container image to run; not needed when `ref` names a StepAction."),
		str("script", "Script executed in the container; replaces `command` and `args`."),
		list("command", "Container entrypoint.", nil),
		list("args", "Arguments to the entrypoint.", nil),
		list("env", "Environment variables.", envVarGroup),
		obj("envFrom", "Sources of environment variables.", nil),
		str("workingDir", "Working directory of the container."),
		list("volumeMounts", "Volumes mounted into the step.", volumeMountGroup),
		enum("imagePullPolicy", "When to pull the image.", "Always", "Never", "IfNotPresent"),
		obj("computeResources", "CPU and memory requests and limits.", nil),
		obj("securityContext", "Security options of the container.", nil),
		str("timeout", "Maximum duration of the step, for example `10m`."),
		enum("onError", "Behaviour when the step fails.", "continue", "stopAndFail"),
		obj("stdoutConfig", "Where to write the step's stdout.", nil),
		obj("stderrConfig", "Where to write the step's stderr.", nil),
		obj("ref", "Reference to a StepAction providing the step's image and script.", nil),
		list("params", "Params passed to a referenced StepAction.", paramGroup),
		list("workspaces", "Workspaces the step may access.", nil),
		list("results", "Results produced by a StepAction step.", nil),
	)

	sidecarGroup = group("Sidecar",
		nonEmpty(required(str("name", "Sidecar name.")), ""),
		recommended(str("image", "Container image to run.")),
		str("script", "Script executed in the sidecar."),
		list("command", "Container entrypoint.", nil),
		list("args", "Arguments to the entrypoint.", nil),
		list("env", "Environment variables.", envVarGroup),
		list("volumeMounts", "Volumes mounted into the sidecar.", volumeMountGroup),
		enum("imagePullPolicy", "When to pull the image.", "Always", "Never", "IfNotPresent"),
		obj("readinessProbe", "Probe deciding when the sidecar is ready.", nil),
		obj("computeResources", "CPU and memory requests and limits.", nil),
		obj("securityContext", "Security options of the container.", nil),
	)

	taskSpecFields = []*Field{
		str("description", "Human-readable description of the Task."),
		list("params", "Parameters the Task accepts.", paramSpecGroup),
		list("workspaces", "Workspaces the Task needs.", workspaceDeclGroup),
		list("results", "Results the Task emits.", taskResultGroup),
		nonEmpty(required(list("steps", "Containers run in order inside the Task's Pod.", stepGroup)), "Task must have at least one step"),
		obj("stepTemplate", "Defaults applied to every step.", nil),
		list("sidecars", "Containers running alongside the steps.", sidecarGroup),
		list("volumes", "Kubernetes volumes available to steps and sidecars.", nil),
		str("displayName", "Name shown by user interfaces."),
	}

	taskSpecGroup = group("Task.spec", taskSpecFields...)

	embeddedTaskGroup = group("EmbeddedTask", append([]*Field{
		obj("metadata", "Labels and annotations for the generated TaskRun.", nil),
		str("apiVersion", "API version of a custom task."),
		str("kind", "Kind of a custom task."),
		obj("spec", "Spec of a custom task.", nil),
	}, taskSpecFields...)...)

	refParamsGroup = group("ResolverParam",
		nonEmpty(required(str("name", "Resolver parameter name.")), ""),
		required(anyValue("value", "Resolver parameter value.")),
	)

	taskRefGroup = group("TaskRef",
		str("name", "Name of a Task in the same namespace."),
		enum("kind", "Kind of the referenced task; defaults to `Task`.", "Task", "ClusterTask"),
		str("apiVersion", "API version of a custom task."),
		str("resolver", "Remote resolver used to fetch the Task (git, bundles, hub, cluster)."),
		list("params", "Parameters of the resolver.", refParamsGroup),
		str("bundle", "OCI bundle holding the Task (deprecated)."),
	)

	pipelineRefGroup = group("PipelineRef",
		str("name", "Name of a Pipeline in the same namespace."),
		str("resolver", "Remote resolver used to fetch the Pipeline."),
		list("params", "Parameters of the resolver.", refParamsGroup),
		str("bundle", "OCI bundle holding the Pipeline (deprecated)."),
	)

	whenGroup = group("WhenExpression",
		str("input", "Value compared against `values`."),
		enum("operator", "Comparison operator.", "in", "notin"),
		list("values", "Values compared with `input`.", nil),
		str("cel", "CEL expression evaluated instead of input/operator/values."),
	)

	matrixGroup = group("Matrix",
		list("params", "Params fanned out into one TaskRun per combination.", paramGroup),
		list("include", "Extra combinations added to the fan-out.", nil),
	)

	pipelineTaskGroup = group("PipelineTask",
		nonEmpty(required(str("name", "Name of the task inside the Pipeline.")), "Pipeline task name must not be empty"),
		str("displayName", "Name shown by user interfaces."),
		str("description", "Human-readable description of the task."),
		obj("taskRef", "Reference to an existing Task.", taskRefGroup),
		obj("taskSpec", "Inline Task specification.", embeddedTaskGroup),
		list("params", "Parameters passed to the task.", paramGroup),
		list("workspaces", "Workspaces bound to the task.", workspaceTaskBindingGroup),
		list("runAfter", "Tasks that must complete before this task.", nil),
		list("when", "Conditions guarding execution of the task.", whenGroup),
		integer("retries", "Number of times to retry the task on failure."),
		str("timeout", "Maximum duration of the task, for example `1h`."),
		enum("onError", "Behaviour when the task fails.", "continue", "stopAndFail"),
		obj("matrix", "Fan the task out over combinations of params.", matrixGroup),
		obj("pipelineRef", "Reference to a Pipeline run as a child (Pipelines in Pipelines).", pipelineRefGroup),
	)

	pipelineSpecGroup = group("Pipeline.spec",
		str("displayName", "Name shown by user interfaces."),
		str("description", "Human-readable description of the Pipeline."),
		nonEmpty(recommended(list("tasks", "Tasks executed by the Pipeline.", pipelineTaskGroup)), "Pipeline must have at least one task"),
		list("finally", "Tasks run after all other tasks, whatever their outcome.", pipelineTaskGroup),
		list("params", "Parameters the Pipeline accepts.", paramSpecGroup),
		list("workspaces", "Workspaces the Pipeline needs.", pipelineWorkspaceDeclGroup),
		list("results", "Results the Pipeline emits.", pipelineResultGroup),
	)

	timeoutsGroup = group("TimeoutFields",
		str("pipeline", "Timeout of the whole PipelineRun."),
		str("tasks", "Timeout of the tasks section."),
		str("finally", "Timeout of the finally section."),
	)

	pipelineTaskRunSpecGroup = group("PipelineTaskRunSpec",
		nonEmpty(required(str("pipelineTaskName", "Pipeline task the overrides apply to.")), ""),
		str("serviceAccountName", "Service account of the task's TaskRun."),
		obj("podTemplate", "Pod template of the task's TaskRun.", nil),
		list("stepSpecs", "Per-step resource overrides.", nil),
		list("sidecarSpecs", "Per-sidecar resource overrides.", nil),
		obj("metadata", "Labels and annotations of the task's TaskRun.", nil),
		obj("computeResources", "Compute resources of the task's TaskRun.", nil),
	)

	pipelineRunSpecGroup = group("PipelineRun.spec",
		obj("pipelineRef", "Reference to the Pipeline to run.", pipelineRefGroup),
		obj("pipelineSpec", "Inline Pipeline specification.", pipelineSpecGroup),
		list("params", "Values for the Pipeline's params.", paramGroup),
		list("workspaces", "Volumes bound to the Pipeline's workspaces.", workspaceBindingGroup),
		obj("taskRunTemplate", "Defaults for every TaskRun created by the run.", group("PipelineTaskRunTemplate",
			str("serviceAccountName", "Service account TaskRuns run as."),
			obj("podTemplate", "Pod template of the TaskRuns.", nil),
		)),
		obj("timeouts", "Timeouts of the run and its sections.", timeoutsGroup),
		enum("status", "Set to cancel or defer the run.", "Cancelled", "CancelledRunFinally", "StoppedRunFinally", "PipelineRunPending"),
		list("taskRunSpecs", "Per-task TaskRun overrides.", pipelineTaskRunSpecGroup),
		str("serviceAccountName", "Service account TaskRuns run as (v1beta1)."),
		obj("podTemplate", "Pod template of the TaskRuns (v1beta1).", nil),
		str("timeout", "Timeout of the run (deprecated, use timeouts)."),
	)

	taskRunSpecGroup = group("TaskRun.spec",
		obj("taskRef", "Reference to the Task to run.", taskRefGroup),
		obj("taskSpec", "Inline Task specification.", taskSpecGroup),
		list("params", "Values for the Task's params.", paramGroup),
		list("workspaces", "Volumes bound to the Task's workspaces.", workspaceBindingGroup),
		str("serviceAccountName", "Service account the Pod runs as."),
		obj("podTemplate", "Pod template of the run.", nil),
		str("timeout", "Maximum duration of the run."),
		integer("retries", "Number of times to retry on failure."),
		enum("status", "Set to cancel the run.", "TaskRunCancelled"),
		str("statusMessage", "Message explaining the status."),
		list("stepSpecs", "Per-step resource overrides.", nil),
		list("sidecarSpecs", "Per-sidecar resource overrides.", nil),
		obj("computeResources", "Compute resources of the run.", nil),
	)

	triggerTemplateSpecGroup = group("TriggerTemplate.spec",
		list("params", "Parameters filled in from bindings.", paramSpecGroup),
		nonEmpty(recommended(list("resourcetemplates", "Resources created for each event; use `$(tt.params.x)`.", nil)), "TriggerTemplate must have at least one resource template"),
	)

	triggerBindingSpecGroup = group("TriggerBinding.spec",
		list("params", "Params extracted from the event, for example `$(body.repository.url)`.", paramGroup),
	)

	triggerRefGroup = group("TriggerRef",
		str("ref", "Name of the referenced resource."),
		enum("kind", "Kind of a binding reference.", "TriggerBinding", "ClusterTriggerBinding"),
		str("name", "Name of an inline binding param."),
		str("value", "Value of an inline binding param."),
		obj("spec", "Inline specification.", nil),
	)

	eventListenerTriggerGroup = group("EventListenerTrigger",
		str("name", "Trigger name."),
		list("bindings", "Bindings extracting params from the event.", triggerRefGroup),
		obj("template", "Template instantiated for each event.", triggerRefGroup),
		list("interceptors", "Interceptors filtering and transforming events.", nil),
		str("serviceAccountName", "Service account creating the resources."),
		str("triggerRef", "Reference to a Trigger resource."),
	)

	eventListenerSpecGroup = group("EventListener.spec",
		str("serviceAccountName", "Service account of the listener."),
		list("triggers", "Triggers evaluated for each event.", eventListenerTriggerGroup),
		obj("namespaceSelector", "Namespaces whose Triggers are served.", nil),
		obj("labelSelector", "Labels selecting Triggers.", nil),
		obj("resources", "Kubernetes resource backing the listener.", nil),
	)
)

func rootGroup(kind Kind, spec *Group, specRequired bool) *Group {
	specField := obj("spec", "Desired state of the "+kind.String()+".", spec)
	specField.Required = specRequired
	return group(kind.String(),
		required(str("apiVersion", "API group and version of the resource.")),
		required(str("kind", "Type of the resource.")),
		required(obj("metadata", "Standard object metadata.", metadataGroup)),
		specField,
		obj("status", "Observed state, written by the controller.", nil),
	)
}

var roots = map[Kind]*Group{
	KindPipeline:        rootGroup(KindPipeline, pipelineSpecGroup, true),
	KindTask:            rootGroup(KindTask, taskSpecGroup, true),
	KindClusterTask:     rootGroup(KindClusterTask, taskSpecGroup, true),
	KindPipelineRun:     rootGroup(KindPipelineRun, pipelineRunSpecGroup, true),
	KindTaskRun:         rootGroup(KindTaskRun, taskRunSpecGroup, true),
	KindTriggerTemplate: rootGroup(KindTriggerTemplate, triggerTemplateSpecGroup, false),
	KindTriggerBinding:  rootGroup(KindTriggerBinding, triggerBindingSpecGroup, false),
	KindEventListener:   rootGroup(KindEventListener, eventListenerSpecGroup, false),
}

var unknownRoot = group("Resource",
	required(str("apiVersion", "API group and version of the resource.")),
	required(str("kind", "Type of the resource.")),
	required(obj("metadata", "Standard object metadata.", metadataGroup)),
	obj("spec", "Desired state of the resource.", nil),
)
