package graph

import (
	"github.com/graphql-go/graphql"
)

func NewSchema(r *Resolver) (graphql.Schema, error) {
	t := newTypes(r)
	str := nonNull(graphql.String)
	id := nonNull(graphql.ID)

	query := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"activities": {
				Type:    nonNull(t.activityPage),
				Args:    graphql.FieldConfigArgument{"options": {Type: listOptionsInput}},
				Resolve: r.guarded(r.activities),
			},
			"notifications": {
				Type:    nonNull(graphql.NewList(nonNull(t.notification))),
				Resolve: r.guarded(r.notifications),
			},
			"projects": {
				Type:    nonNull(t.projectPage),
				Args:    graphql.FieldConfigArgument{"options": {Type: listOptionsInput}},
				Resolve: r.guarded(r.projects),
			},
			"project": {
				Type:        t.project,
				Description: "Looks a project up by slug or id.",
				Args:        graphql.FieldConfigArgument{"slug": {Type: str}},
				Resolve:     r.guarded(r.project),
			},
			"scan": {
				Type:        t.scan,
				Description: "Looks a scan up by slug or id.",
				Args:        graphql.FieldConfigArgument{"slug": {Type: str}},
				Resolve:     r.guarded(r.scan),
			},
			"verify_token": {
				Type:    t.user,
				Args:    graphql.FieldConfigArgument{"token": {Type: str}},
				Resolve: r.public(r.verifyToken),
			},
		},
	})

	mutation := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"signup": {
				Type: t.user,
				Args: graphql.FieldConfigArgument{
					"name":     {Type: str},
					"email":    {Type: str},
					"password": {Type: str},
				},
				Resolve: r.public(r.signup),
			},
			"login": {
				Type: t.authPayload,
				Args: graphql.FieldConfigArgument{
					"email":    {Type: str},
					"password": {Type: str},
				},
				Resolve: r.public(r.login),
			},
			"verify_account": {
				Type: t.authPayload,
				Args: graphql.FieldConfigArgument{
					"id":    {Type: id},
					"token": {Type: str},
				},
				Resolve: r.public(r.verifyAccount),
			},
			"forgot_password": {
				Type:    graphql.Boolean,
				Args:    graphql.FieldConfigArgument{"email": {Type: str}},
				Resolve: r.public(r.forgotPassword),
			},
			"reset_password": {
				Type: graphql.Boolean,
				Args: graphql.FieldConfigArgument{
					"id":       {Type: id},
					"token":    {Type: str},
					"password": {Type: str},
				},
				Resolve: r.public(r.resetPassword),
			},
			"update_account": {
				Type: t.user,
				Args: graphql.FieldConfigArgument{
					"name":    {Type: str},
					"picture": {Type: graphql.String},
				},
				Resolve: r.guarded(r.updateAccount),
			},
			"update_password": {
				Type: graphql.Boolean,
				Args: graphql.FieldConfigArgument{
					"current_password": {Type: str},
					"password":         {Type: str},
				},
				Resolve: r.guarded(r.updatePassword),
			},
			"create_project": {
				Type: t.project,
				Args: graphql.FieldConfigArgument{
					"name":         {Type: str},
					"thumbnail_id": {Type: graphql.ID},
				},
				Resolve: r.guarded(r.createProject),
			},
			"update_project": {
				Type: t.project,
				Args: graphql.FieldConfigArgument{
					"id":           {Type: id},
					"name":         {Type: str},
					"thumbnail_id": {Type: graphql.ID},
				},
				Resolve: r.guarded(r.updateProject),
			},
			"delete_project": {
				Type:    t.project,
				Args:    graphql.FieldConfigArgument{"id": {Type: id}},
				Resolve: r.guarded(r.deleteProject),
			},
			"create_scan": {
				Type: t.scan,
				Args: graphql.FieldConfigArgument{
					"name":          {Type: str},
					"project_id":    {Type: id},
					"input_file_id": {Type: id},
				},
				Resolve: r.guarded(r.createScan),
			},
			"update_scan": {
				Type: t.scan,
				Args: graphql.FieldConfigArgument{
					"id":   {Type: id},
					"name": {Type: str},
				},
				Resolve: r.guarded(r.updateScan),
			},
			"delete_scan": {
				Type:    t.scan,
				Args:    graphql.FieldConfigArgument{"id": {Type: id}},
				Resolve: r.guarded(r.deleteScan),
			},
			"read_notifications": {
				Type:    nonNull(graphql.NewList(nonNull(t.notification))),
				Resolve: r.guarded(r.readNotifications),
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:    query,
		Mutation: mutation,
	})
}
