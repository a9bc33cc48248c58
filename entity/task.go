package entity

import "github.com/worldforge-go/atlasclient/op"

// Task is a server-declared activity anchored to an entity (e.g.
// crafting progress). It never outlives the entity that owns it.
type Task struct {
	ID   string
	Name string

	Progress    float64
	HasProgress bool
	Rate        float64
	HasRate     bool

	Attrs map[string]op.Element
}

// reconcileTasks diffs the decoded "tasks" property against the
// entity's previous task map (§4.8). A non-map value clears every task.
// Existing ids are updated in place (same *Task instance, so holders of
// a pointer observe the update); ids that are new fire TaskAdded; ids
// that existed before but are absent now fire TaskRemoved. Malformed
// entries (missing or non-string "name") are skipped with a warning.
func (e *Entity) reconcileTasks(value op.Element) {
	raw, isMap := value.AsMap()
	if !isMap {
		for id, task := range e.Tasks {
			delete(e.Tasks, id)
			e.OnTaskRemoved.Emit(task)
		}
		return
	}

	seen := make(map[string]struct{}, len(raw))
	for id, taskElement := range raw {
		fields, ok := taskElement.AsMap()
		if !ok {
			e.view.logger.Warn("malformed task entry: not a map", "entity", e.ID, "task", id)
			continue
		}
		name, ok := fields["name"].AsString()
		if !ok {
			e.view.logger.Warn("malformed task entry: missing or non-string name", "entity", e.ID, "task", id)
			continue
		}
		seen[id] = struct{}{}

		existing, had := e.Tasks[id]
		if !had {
			existing = &Task{ID: id}
			e.Tasks[id] = existing
		}
		existing.Name = name
		existing.Attrs = fields
		if progress, ok := fields["progress"].AsFloat(); ok {
			existing.Progress = progress
			existing.HasProgress = true
		} else {
			existing.HasProgress = false
		}
		if rate, ok := fields["rate"].AsFloat(); ok {
			existing.Rate = rate
			existing.HasRate = true
		} else {
			existing.HasRate = false
		}

		if had {
			continue
		}
		e.OnTaskAdded.Emit(existing)
	}

	for id, task := range e.Tasks {
		if _, ok := seen[id]; ok {
			continue
		}
		delete(e.Tasks, id)
		e.OnTaskRemoved.Emit(task)
	}
}
