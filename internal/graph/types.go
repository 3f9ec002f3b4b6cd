package graph

import (
	"encoding/json"

	"github.com/graphql-go/graphql"

	"scanhub/internal/models"
	"scanhub/internal/service"
)

// The tables below are the only mapping between models and the GraphQL
// schema. Field names are snake_case on the wire.

var jsonScalar = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "JSON",
	Description: "Arbitrary JSON object.",
	Serialize: func(value interface{}) interface{} {
		raw, ok := value.(json.RawMessage)
		if !ok {
			return value
		}
		if len(raw) == 0 {
			return nil
		}
		var out interface{}
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil
		}
		return out
	},
})

var scanStatusEnum = graphql.NewEnum(graphql.EnumConfig{
	Name: "ScanStatus",
	Values: graphql.EnumValueConfigMap{
		"Preparing": &graphql.EnumValueConfig{Value: models.ScanStatusPreparing},
		"Completed": &graphql.EnumValueConfig{Value: models.ScanStatusCompleted},
		"Failed":    &graphql.EnumValueConfig{Value: models.ScanStatusFailed},
	},
})

var fileTypeEnum = graphql.NewEnum(graphql.EnumConfig{
	Name: "FileType",
	Values: graphql.EnumValueConfigMap{
		"Video": &graphql.EnumValueConfig{Value: models.FileTypeVideo},
		"Image": &graphql.EnumValueConfig{Value: models.FileTypeImage},
		"Splat": &graphql.EnumValueConfig{Value: models.FileTypeSplat},
	},
})

var listOptionsInput = graphql.NewInputObject(graphql.InputObjectConfig{
	Name: "ListOptions",
	Fields: graphql.InputObjectConfigFieldMap{
		"page":     &graphql.InputObjectFieldConfig{Type: graphql.Int},
		"per_page": &graphql.InputObjectFieldConfig{Type: graphql.Int},
		"sort":     &graphql.InputObjectFieldConfig{Type: graphql.String, Description: "created_at or name"},
		"order":    &graphql.InputObjectFieldConfig{Type: graphql.String, Description: "asc or desc"},
		"search":   &graphql.InputObjectFieldConfig{Type: graphql.String},
	},
})

// field resolves from a typed source with an explicit accessor.
func field[T any](typ graphql.Output, get func(T) interface{}) *graphql.Field {
	return &graphql.Field{
		Type: typ,
		Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			src, ok := p.Source.(T)
			if !ok {
				return nil, nil
			}
			return get(src), nil
		},
	}
}

func optional(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func nonNull(t graphql.Output) graphql.Output {
	return graphql.NewNonNull(t)
}

type types struct {
	user         *graphql.Object
	authPayload  *graphql.Object
	file         *graphql.Object
	project      *graphql.Object
	projectPage  *graphql.Object
	scan         *graphql.Object
	scanPage     *graphql.Object
	notification *graphql.Object
	activity     *graphql.Object
	activityPage *graphql.Object
}

func newTypes(r *Resolver) *types {
	t := &types{}

	t.user = graphql.NewObject(graphql.ObjectConfig{
		Name: "User",
		Fields: graphql.Fields{
			"id":         field(nonNull(graphql.ID), func(u models.User) interface{} { return u.ID }),
			"name":       field(nonNull(graphql.String), func(u models.User) interface{} { return u.Name }),
			"email":      field(nonNull(graphql.String), func(u models.User) interface{} { return u.Email }),
			"picture":    field(graphql.String, func(u models.User) interface{} { return optional(u.Picture) }),
			"verified":   field(nonNull(graphql.Boolean), func(u models.User) interface{} { return u.Verified }),
			"created_at": field(nonNull(graphql.DateTime), func(u models.User) interface{} { return u.CreatedAt }),
			"updated_at": field(nonNull(graphql.DateTime), func(u models.User) interface{} { return u.UpdatedAt }),
		},
	})

	t.authPayload = graphql.NewObject(graphql.ObjectConfig{
		Name: "AuthPayload",
		Fields: graphql.Fields{
			"token": field(nonNull(graphql.String), func(a service.AuthResult) interface{} { return a.Token }),
			"user":  field(nonNull(t.user), func(a service.AuthResult) interface{} { return a.User }),
		},
	})

	t.file = graphql.NewObject(graphql.ObjectConfig{
		Name: "File",
		Fields: graphql.Fields{
			"id":            field(nonNull(graphql.ID), func(f models.File) interface{} { return f.ID }),
			"name":          field(nonNull(graphql.String), func(f models.File) interface{} { return f.Name }),
			"key":           field(nonNull(graphql.String), func(f models.File) interface{} { return f.Key }),
			"bucket":        field(nonNull(graphql.String), func(f models.File) interface{} { return f.Bucket }),
			"url":           field(nonNull(graphql.String), func(f models.File) interface{} { return f.URL }),
			"type":          field(nonNull(fileTypeEnum), func(f models.File) interface{} { return f.Type }),
			"mimetype":      field(nonNull(graphql.String), func(f models.File) interface{} { return f.Mimetype }),
			"size":          field(nonNull(graphql.Float), func(f models.File) interface{} { return float64(f.Size) }),
			"thumbnail_url": field(graphql.String, func(f models.File) interface{} { return f.ThumbnailURL }),
			"created_at":    field(nonNull(graphql.DateTime), func(f models.File) interface{} { return f.CreatedAt }),
			"updated_at":    field(nonNull(graphql.DateTime), func(f models.File) interface{} { return f.UpdatedAt }),
		},
	})

	t.scan = graphql.NewObject(graphql.ObjectConfig{
		Name: "Scan",
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			return graphql.Fields{
				"id":         field(nonNull(graphql.ID), func(s models.Scan) interface{} { return s.ID }),
				"name":       field(nonNull(graphql.String), func(s models.Scan) interface{} { return s.Name }),
				"slug":       field(nonNull(graphql.String), func(s models.Scan) interface{} { return s.Slug }),
				"status":     field(nonNull(scanStatusEnum), func(s models.Scan) interface{} { return s.Status }),
				"created_at": field(nonNull(graphql.DateTime), func(s models.Scan) interface{} { return s.CreatedAt }),
				"updated_at": field(nonNull(graphql.DateTime), func(s models.Scan) interface{} { return s.UpdatedAt }),
				"project":    {Type: nonNull(t.project), Resolve: r.scanProject},
				"input_file": {Type: nonNull(t.file), Resolve: r.scanInputFile},
				"splat_file": {Type: t.file, Resolve: r.scanSplatFile},
			}
		}),
	})

	t.scanPage = pageType[models.Scan]("ScanPage", t.scan)

	t.project = graphql.NewObject(graphql.ObjectConfig{
		Name: "Project",
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			return graphql.Fields{
				"id":           field(nonNull(graphql.ID), func(p models.Project) interface{} { return p.ID }),
				"name":         field(nonNull(graphql.String), func(p models.Project) interface{} { return p.Name }),
				"slug":         field(nonNull(graphql.String), func(p models.Project) interface{} { return p.Slug }),
				"thumbnail_id": field(graphql.ID, func(p models.Project) interface{} { return optional(p.ThumbnailID) }),
				"created_at":   field(nonNull(graphql.DateTime), func(p models.Project) interface{} { return p.CreatedAt }),
				"updated_at":   field(nonNull(graphql.DateTime), func(p models.Project) interface{} { return p.UpdatedAt }),
				"thumbnail":    {Type: t.file, Resolve: r.projectThumbnail},
				"scans": {
					Type:    nonNull(t.scanPage),
					Args:    graphql.FieldConfigArgument{"options": {Type: listOptionsInput}},
					Resolve: r.projectScans,
				},
			}
		}),
	})

	t.projectPage = pageType[models.Project]("ProjectPage", t.project)

	t.notification = graphql.NewObject(graphql.ObjectConfig{
		Name: "Notification",
		Fields: graphql.Fields{
			"id":         field(nonNull(graphql.ID), func(n models.Notification) interface{} { return n.ID }),
			"title":      field(nonNull(graphql.String), func(n models.Notification) interface{} { return n.Title }),
			"type":       field(nonNull(graphql.String), func(n models.Notification) interface{} { return string(n.Type) }),
			"read":       field(nonNull(graphql.Boolean), func(n models.Notification) interface{} { return n.Read }),
			"metadata":   field(jsonScalar, func(n models.Notification) interface{} { return n.Metadata }),
			"created_at": field(nonNull(graphql.DateTime), func(n models.Notification) interface{} { return n.CreatedAt }),
		},
	})

	t.activity = graphql.NewObject(graphql.ObjectConfig{
		Name: "Activity",
		Fields: graphql.Fields{
			"id":         field(nonNull(graphql.ID), func(a models.Activity) interface{} { return a.ID }),
			"entity":     field(nonNull(graphql.String), func(a models.Activity) interface{} { return string(a.Entity) }),
			"type":       field(nonNull(graphql.String), func(a models.Activity) interface{} { return string(a.Type) }),
			"metadata":   field(jsonScalar, func(a models.Activity) interface{} { return a.Metadata }),
			"created_at": field(nonNull(graphql.DateTime), func(a models.Activity) interface{} { return a.CreatedAt }),
		},
	})

	t.activityPage = pageType[models.Activity]("ActivityPage", t.activity)

	return t
}

func pageType[T any](name string, item *graphql.Object) *graphql.Object {
	return graphql.NewObject(graphql.ObjectConfig{
		Name: name,
		Fields: graphql.Fields{
			"items":    field(nonNull(graphql.NewList(nonNull(item))), func(p service.Page[T]) interface{} { return p.Items }),
			"total":    field(nonNull(graphql.Int), func(p service.Page[T]) interface{} { return p.Total }),
			"page":     field(nonNull(graphql.Int), func(p service.Page[T]) interface{} { return p.Page }),
			"per_page": field(nonNull(graphql.Int), func(p service.Page[T]) interface{} { return p.PerPage }),
		},
	})
}
