package graph

import (
	"github.com/graphql-go/graphql"
	"github.com/rs/zerolog"

	"scanhub/internal/apperr"
	"scanhub/internal/models"
	"scanhub/internal/service"
)

type Resolver struct {
	Auth          *service.AuthService
	Projects      *service.ProjectService
	Scans         *service.ScanService
	Files         *service.FileService
	Notifications *service.NotificationService
	Activities    *service.ActivityService
	Log           zerolog.Logger
}

// guard authenticates the bearer token carried by the request context.
// Resolvers call it before touching any service.
func (r *Resolver) guard(p graphql.ResolveParams) (models.User, error) {
	ra := authFrom(p.Context)
	ra.once.Do(func() {
		if ra.token == "" {
			ra.err = apperr.Unauthorized("")
			return
		}
		ra.user, ra.err = r.Auth.Authenticate(p.Context, ra.token)
	})
	return ra.user, ra.err
}

// fail hands graphql-go an *apperr.Error so the response carries
// extensions.code. Internal causes are logged and hidden.
func (r *Resolver) fail(p graphql.ResolveParams, err error) (interface{}, error) {
	appErr := apperr.As(err)
	if appErr.Kind == apperr.KindInternal {
		r.Log.Error().Err(err).Str("field", p.Info.FieldName).Msg("resolver failed")
	}
	return nil, appErr
}

// guarded wraps a resolver that needs the current user.
func (r *Resolver) guarded(fn func(p graphql.ResolveParams, user models.User) (interface{}, error)) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		user, err := r.guard(p)
		if err != nil {
			return r.fail(p, err)
		}
		out, err := fn(p, user)
		if err != nil {
			return r.fail(p, err)
		}
		return out, nil
	}
}

// public wraps a resolver that runs without a token.
func (r *Resolver) public(fn func(p graphql.ResolveParams) (interface{}, error)) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		out, err := fn(p)
		if err != nil {
			return r.fail(p, err)
		}
		return out, nil
	}
}

func argString(p graphql.ResolveParams, name string) string {
	s, _ := p.Args[name].(string)
	return s
}

func argOptString(p graphql.ResolveParams, name string) *string {
	s, ok := p.Args[name].(string)
	if !ok {
		return nil
	}
	return &s
}

// argNull reports an argument written as an explicit null. graphql-go drops
// null arguments from p.Args, so presence is read off the field AST.
func argNull(p graphql.ResolveParams, name string) bool {
	if _, ok := p.Args[name]; ok {
		return false
	}
	for _, field := range p.Info.FieldASTs {
		for _, arg := range field.Arguments {
			if arg.Name != nil && arg.Name.Value == name {
				return true
			}
		}
	}
	return false
}

func argOptions(p graphql.ResolveParams) service.ListOptions {
	raw, _ := p.Args["options"].(map[string]interface{})
	opts := service.ListOptions{}
	if raw == nil {
		return opts
	}
	opts.Page, _ = raw["page"].(int)
	opts.PerPage, _ = raw["per_page"].(int)
	opts.Sort, _ = raw["sort"].(string)
	opts.Order, _ = raw["order"].(string)
	opts.Search, _ = raw["search"].(string)
	return opts
}

// Queries

func (r *Resolver) activities(p graphql.ResolveParams, user models.User) (interface{}, error) {
	return r.Activities.List(p.Context, user, argOptions(p))
}

func (r *Resolver) notifications(p graphql.ResolveParams, user models.User) (interface{}, error) {
	return r.Notifications.FindAll(p.Context, user)
}

func (r *Resolver) projects(p graphql.ResolveParams, user models.User) (interface{}, error) {
	return r.Projects.List(p.Context, user, argOptions(p))
}

func (r *Resolver) project(p graphql.ResolveParams, user models.User) (interface{}, error) {
	return r.Projects.Find(p.Context, user, argString(p, "slug"))
}

func (r *Resolver) scan(p graphql.ResolveParams, user models.User) (interface{}, error) {
	return r.Scans.Find(p.Context, user, argString(p, "slug"))
}

func (r *Resolver) verifyToken(p graphql.ResolveParams) (interface{}, error) {
	return r.Auth.VerifyToken(p.Context, argString(p, "token"))
}

// Mutations

func (r *Resolver) signup(p graphql.ResolveParams) (interface{}, error) {
	return r.Auth.Signup(p.Context, service.SignupInput{
		Name:     argString(p, "name"),
		Email:    argString(p, "email"),
		Password: argString(p, "password"),
	})
}

func (r *Resolver) login(p graphql.ResolveParams) (interface{}, error) {
	return r.Auth.Login(p.Context, service.LoginInput{
		Email:    argString(p, "email"),
		Password: argString(p, "password"),
	})
}

func (r *Resolver) verifyAccount(p graphql.ResolveParams) (interface{}, error) {
	return r.Auth.VerifyAccount(p.Context, service.VerifyAccountInput{
		ID:    argString(p, "id"),
		Token: argString(p, "token"),
	})
}

func (r *Resolver) forgotPassword(p graphql.ResolveParams) (interface{}, error) {
	if err := r.Auth.ForgotPassword(p.Context, service.ForgotPasswordInput{Email: argString(p, "email")}); err != nil {
		return nil, err
	}
	return true, nil
}

func (r *Resolver) resetPassword(p graphql.ResolveParams) (interface{}, error) {
	err := r.Auth.ResetPassword(p.Context, service.ResetPasswordInput{
		ID:       argString(p, "id"),
		Token:    argString(p, "token"),
		Password: argString(p, "password"),
	})
	if err != nil {
		return nil, err
	}
	return true, nil
}

func (r *Resolver) updateAccount(p graphql.ResolveParams, user models.User) (interface{}, error) {
	return r.Auth.UpdateAccount(p.Context, user, service.UpdateAccountInput{
		Name:    argString(p, "name"),
		Picture:      argOptString(p, "picture"),
		ClearPicture: argNull(p, "picture"),
	})
}

func (r *Resolver) updatePassword(p graphql.ResolveParams, user models.User) (interface{}, error) {
	err := r.Auth.UpdatePassword(p.Context, user, service.UpdatePasswordInput{
		CurrentPassword: argString(p, "current_password"),
		Password:        argString(p, "password"),
	})
	if err != nil {
		return nil, err
	}
	return true, nil
}

func (r *Resolver) createProject(p graphql.ResolveParams, user models.User) (interface{}, error) {
	return r.Projects.Create(p.Context, user, service.ProjectInput{
		Name:        argString(p, "name"),
		ThumbnailID: argOptString(p, "thumbnail_id"),
	})
}

func (r *Resolver) updateProject(p graphql.ResolveParams, user models.User) (interface{}, error) {
	return r.Projects.Update(p.Context, user, argString(p, "id"), service.ProjectInput{
		Name:           argString(p, "name"),
		ThumbnailID:    argOptString(p, "thumbnail_id"),
		ClearThumbnail: argNull(p, "thumbnail_id"),
	})
}

func (r *Resolver) deleteProject(p graphql.ResolveParams, user models.User) (interface{}, error) {
	return r.Projects.Delete(p.Context, user, argString(p, "id"))
}

func (r *Resolver) createScan(p graphql.ResolveParams, user models.User) (interface{}, error) {
	return r.Scans.Create(p.Context, user, service.CreateScanInput{
		Name:        argString(p, "name"),
		ProjectID:   argString(p, "project_id"),
		InputFileID: argString(p, "input_file_id"),
	})
}

func (r *Resolver) updateScan(p graphql.ResolveParams, user models.User) (interface{}, error) {
	return r.Scans.Update(p.Context, user, argString(p, "id"), service.UpdateScanInput{
		Name: argString(p, "name"),
	})
}

func (r *Resolver) deleteScan(p graphql.ResolveParams, user models.User) (interface{}, error) {
	return r.Scans.Delete(p.Context, user, argString(p, "id"))
}

func (r *Resolver) readNotifications(p graphql.ResolveParams, user models.User) (interface{}, error) {
	return r.Notifications.Read(p.Context, user)
}

// Nested fields resolve lazily, only when selected.

func (r *Resolver) projectScans(p graphql.ResolveParams) (interface{}, error) {
	return r.guarded(func(p graphql.ResolveParams, user models.User) (interface{}, error) {
		project, _ := p.Source.(models.Project)
		return r.Scans.ListByProject(p.Context, user, project.ID, argOptions(p))
	})(p)
}

func (r *Resolver) projectThumbnail(p graphql.ResolveParams) (interface{}, error) {
	project, _ := p.Source.(models.Project)
	if project.ThumbnailID == nil {
		return nil, nil
	}
	return r.public(func(p graphql.ResolveParams) (interface{}, error) {
		return r.Files.FindByID(p.Context, *project.ThumbnailID)
	})(p)
}

func (r *Resolver) scanProject(p graphql.ResolveParams) (interface{}, error) {
	return r.guarded(func(p graphql.ResolveParams, user models.User) (interface{}, error) {
		scan, _ := p.Source.(models.Scan)
		return r.Projects.Find(p.Context, user, scan.ProjectID)
	})(p)
}

func (r *Resolver) scanInputFile(p graphql.ResolveParams) (interface{}, error) {
	scan, _ := p.Source.(models.Scan)
	return r.public(func(p graphql.ResolveParams) (interface{}, error) {
		return r.Files.FindByID(p.Context, scan.InputFileID)
	})(p)
}

func (r *Resolver) scanSplatFile(p graphql.ResolveParams) (interface{}, error) {
	scan, _ := p.Source.(models.Scan)
	if scan.SplatFileID == nil {
		return nil, nil
	}
	return r.public(func(p graphql.ResolveParams) (interface{}, error) {
		return r.Files.FindByID(p.Context, *scan.SplatFileID)
	})(p)
}
