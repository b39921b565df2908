package workflow

import (
	"moflow/internal/notify"
	"moflow/internal/workflow/models"
)

func createNotices(d *models.Draft) func(string) []notify.Notification {
	kind := d.Entity
	var from string
	if v := d.DefaultValidity(); v != nil {
		from = v.From
	}
	var staged []models.DetailKind
	for _, k := range models.DetailKinds {
		if len(d.Details[k]) > 0 {
			staged = append(staged, k)
		}
	}
	return func(id string) []notify.Notification {
		when := notify.ParseDate(from)
		out := []notify.Notification{{
			Service:    kind.NotifyService(),
			ObjectType: kind.ObjectType(),
			Action:     notify.ActionCreate,
			UUID:       id,
			Time:       when,
		}}
		for _, k := range staged {
			out = append(out, notify.Notification{
				Service:    kind.NotifyService(),
				ObjectType: string(k),
				Action:     notify.ActionCreate,
				UUID:       id,
				Time:       when,
			})
		}
		return out
	}
}

func editNotices(kind models.EntityKind, subject string, reqs []models.EditRequest) func(string) []notify.Notification {
	return func(string) []notify.Notification {
		out := make([]notify.Notification, 0, len(reqs))
		for _, r := range reqs {
			var from string
			if v, ok := r.Data["validity"].(*models.Validity); ok && v != nil {
				from = v.From
			}
			action := notify.ActionUpdate
			if r.UUID == "" {
				action = notify.ActionCreate
			}
			out = append(out, notify.Notification{
				Service:    kind.NotifyService(),
				ObjectType: r.Type,
				Action:     action,
				UUID:       subject,
				Time:       notify.ParseDate(from),
			})
		}
		return out
	}
}

func employeeMoveNotices(m models.EmployeeMove) func(string) []notify.Notification {
	return func(string) []notify.Notification {
		when := notify.ParseDate(m.From)
		return []notify.Notification{
			{Service: models.EntityEmployee.NotifyService(), ObjectType: string(models.DetailEngagement), Action: notify.ActionUpdate, UUID: m.EmployeeUUID, Time: when},
			{Service: models.EntityOrgUnit.NotifyService(), ObjectType: string(models.DetailEngagement), Action: notify.ActionUpdate, UUID: m.OrgUnit.UUID, Time: when},
		}
	}
}

func orgUnitMoveNotices(m models.OrgUnitMove) func(string) []notify.Notification {
	return func(string) []notify.Notification {
		return []notify.Notification{{
			Service:    models.EntityOrgUnit.NotifyService(),
			ObjectType: models.EntityOrgUnit.ObjectType(),
			Action:     notify.ActionUpdate,
			UUID:       m.Unit.UUID,
			Time:       notify.ParseDate(m.From),
		}}
	}
}

func terminateNotices(t models.EmployeeTermination) func(string) []notify.Notification {
	return func(string) []notify.Notification {
		return []notify.Notification{{
			Service:    models.EntityEmployee.NotifyService(),
			ObjectType: models.EntityEmployee.ObjectType(),
			Action:     notify.ActionDelete,
			UUID:       t.EmployeeUUID,
			Time:       notify.ParseDate(t.To),
		}}
	}
}
