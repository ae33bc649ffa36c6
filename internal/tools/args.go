package tools

import "fmt"

// Call is the typed argument set of one supported tool. The set of
// implementations is closed: only this package can add one.
type Call interface {
	tool() Name
}

// CreateTaskArgs holds the fields sent when creating a task. Nil fields are
// left out of the request; an explicit empty string is sent as is.
type CreateTaskArgs struct {
	Title       *string
	Description *string
	DueDate     *string
	Status      *string
}

type UpdateTaskArgs struct {
	TaskID      string
	Title       *string
	Description *string
	DueDate     *string
	Status      *string
}

type DeleteTaskArgs struct {
	TaskID string
}

// ListTasksArgs values are forwarded verbatim as query parameters.
type ListTasksArgs struct {
	Status *string
	Limit  *string
	Offset *string
}

func (CreateTaskArgs) tool() Name { return CreateTask }
func (UpdateTaskArgs) tool() Name { return UpdateTask }
func (DeleteTaskArgs) tool() Name { return DeleteTask }
func (ListTasksArgs) tool() Name  { return ListTasks }

// DecodeCall converts raw arguments into the typed call for name.
func DecodeCall(name Name, args map[string]string) (Call, error) {
	switch name {
	case CreateTask:
		return CreateTaskArgs{
			Title:       lookup(args, "title"),
			Description: lookup(args, "description"),
			DueDate:     lookup(args, "due_date"),
			Status:      lookup(args, "status"),
		}, nil
	case UpdateTask:
		return UpdateTaskArgs{
			TaskID:      args["task_id"],
			Title:       lookup(args, "title"),
			Description: lookup(args, "description"),
			DueDate:     lookup(args, "due_date"),
			Status:      lookup(args, "status"),
		}, nil
	case DeleteTask:
		return DeleteTaskArgs{TaskID: args["task_id"]}, nil
	case ListTasks:
		return ListTasksArgs{
			Status: lookup(args, "status"),
			Limit:  lookup(args, "limit"),
			Offset: lookup(args, "offset"),
		}, nil
	}
	return nil, fmt.Errorf("unsupported tool %q", name)
}

func lookup(args map[string]string, key string) *string {
	if v, ok := args[key]; ok {
		return &v
	}
	return nil
}

// fields collects the optional task fields that were explicitly provided.
func fields(title, description, dueDate, status *string) map[string]string {
	out := make(map[string]string, 4)
	for key, v := range map[string]*string{
		"title":       title,
		"description": description,
		"due_date":    dueDate,
		"status":      status,
	} {
		if v != nil {
			out[key] = *v
		}
	}
	return out
}
