package resolver

import (
	"context"
	"fmt"

	"github.com/alwitt/goutils"
	"github.com/apex/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/vaultmesh/accesskit/models"
)

// DualSourceExhaustedError both resolution paths failed
type DualSourceExhaustedError struct {
	// IndexedCause failure of the indexed path, nil when not attempted
	IndexedCause error
	// DirectCause failure of the direct contract read path
	DirectCause error
}

func (e *DualSourceExhaustedError) Error() string {
	indexed := "not attempted"
	if e.IndexedCause != nil {
		indexed = e.IndexedCause.Error()
	}
	return fmt.Sprintf(
		"both resolution paths failed: indexed (%s), direct (%s)",
		indexed,
		e.DirectCause.Error(),
	)
}

// QueryParams state resolution query parameters
type QueryParams struct {
	// Offset page offset
	Offset int `validate:"gte=0"`
	// Limit page size
	Limit int `validate:"required,gte=1"`
	// Mode resolution mode, defaults to auto
	Mode models.QueryModeENUMType `validate:"omitempty,query_mode"`
}

// RegistryReader direct contract read surface of the resolver
type RegistryReader interface {
	// PermissionCount number of permission entries of a user
	PermissionCount(ctx context.Context, user common.Address) (int, error)
	// PermissionsPage one page of permission entries, tagged per entry
	PermissionsPage(
		ctx context.Context, user common.Address, offset int, limit int,
	) ([]models.BatchResult[models.Permission], error)
	// ServerCount size of a user's trust set
	ServerCount(ctx context.Context, user common.Address) (int, error)
	// ServersPage one page of the trust set, tagged per entry
	ServersPage(
		ctx context.Context, user common.Address, offset int, limit int,
	) ([]models.BatchResult[models.TrustedServer], error)
}

// Resolver resolves registry state through the indexed service or direct
// contract reads
//
// The indexed path is preferred when available; any indexed failure degrades
// to the direct path with a warning instead of surfacing an error. Entry
// ordering is internally consistent per path but differs between paths.
type Resolver interface {
	/*
		Permissions resolve one page of a user's permission entries

		 @param ctx context.Context - execution context
		 @param user common.Address - the account
		 @param params QueryParams - page and mode selection
		 @return the resolved page
	*/
	Permissions(
		ctx context.Context, user common.Address, params QueryParams,
	) (models.Page[models.Permission], error)

	/*
		TrustedServers resolve one page of a user's trust set

		 @param ctx context.Context - execution context
		 @param user common.Address - the account
		 @param params QueryParams - page and mode selection
		 @return the resolved page
	*/
	TrustedServers(
		ctx context.Context, user common.Address, params QueryParams,
	) (models.Page[models.TrustedServer], error)
}

// dualModeResolver implements Resolver
type dualModeResolver struct {
	goutils.Component

	indexed  IndexedSource
	direct   RegistryReader
	validate *validator.Validate
}

// ResolverParams resolver init parameters
type ResolverParams struct {
	// Indexed indexed query service client, nil when not configured
	Indexed IndexedSource
	// Direct direct contract read surface
	Direct RegistryReader `validate:"required"`
}

/*
NewResolver define a new dual mode state resolver

	@param params ResolverParams - resolver parameters
	@returns resolver instance
*/
func NewResolver(params ResolverParams) (Resolver, error) {
	validate := validator.New()
	if err := models.RegisterWithValidator(validate); err != nil {
		return nil, fmt.Errorf("failed to prepare query validation [%w]", err)
	}
	if err := validate.Struct(&params); err != nil {
		return nil, err
	}

	logTags := log.Fields{"module": "resolver", "component": "dual-mode-resolver"}

	return &dualModeResolver{
		Component: goutils.Component{
			LogTags: logTags,
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		indexed:  params.Indexed,
		direct:   params.Direct,
		validate: validate,
	}, nil
}

func (r *dualModeResolver) Permissions(
	ctx context.Context, user common.Address, params QueryParams,
) (models.Page[models.Permission], error) {
	return resolvePage(
		ctx,
		r,
		params,
		func(queryCtx context.Context) ([]models.Permission, error) {
			return r.indexed.UserPermissions(queryCtx, user)
		},
		func(queryCtx context.Context) (int, error) {
			return r.direct.PermissionCount(queryCtx, user)
		},
		func(queryCtx context.Context, offset int, limit int) (
			[]models.BatchResult[models.Permission], error,
		) {
			return r.direct.PermissionsPage(queryCtx, user, offset, limit)
		},
	)
}

func (r *dualModeResolver) TrustedServers(
	ctx context.Context, user common.Address, params QueryParams,
) (models.Page[models.TrustedServer], error) {
	return resolvePage(
		ctx,
		r,
		params,
		func(queryCtx context.Context) ([]models.TrustedServer, error) {
			return r.indexed.UserTrustedServers(queryCtx, user)
		},
		func(queryCtx context.Context) (int, error) {
			return r.direct.ServerCount(queryCtx, user)
		},
		func(queryCtx context.Context, offset int, limit int) (
			[]models.BatchResult[models.TrustedServer], error,
		) {
			return r.direct.ServersPage(queryCtx, user, offset, limit)
		},
	)
}

// resolvePage shared indexed-then-direct resolution flow
func resolvePage[T any](
	ctx context.Context,
	r *dualModeResolver,
	params QueryParams,
	indexedQuery func(ctx context.Context) ([]T, error),
	directCount func(ctx context.Context) (int, error),
	directPage func(ctx context.Context, offset int, limit int) ([]models.BatchResult[T], error),
) (models.Page[T], error) {
	logTags := r.GetLogTagsForContext(ctx)

	if params.Mode == "" {
		params.Mode = models.QueryModeAuto
	}
	if err := r.validate.Struct(&params); err != nil {
		return models.Page[T]{}, err
	}

	var warnings []string
	var indexedCause error

	// Indexed path first, unless direct reads were requested outright
	if params.Mode != models.QueryModeRPC {
		if r.indexed == nil {
			warnings = append(warnings, "indexed query service not configured")
		} else {
			entries, err := indexedQuery(ctx)
			if err == nil {
				return slicePage(entries, params, models.QueryModeIndexed, warnings), nil
			}
			indexedCause = err
			warnings = append(
				warnings, fmt.Sprintf("indexed query failed: %s", err.Error()),
			)
			log.
				WithError(err).
				WithFields(logTags).
				Warn("Indexed path failed, falling back to direct reads")
		}
	}

	total, err := directCount(ctx)
	if err != nil {
		return models.Page[T]{}, &DualSourceExhaustedError{
			IndexedCause: indexedCause, DirectCause: err,
		}
	}

	// Clamp the window so strict index reads never run past the end
	offset := params.Offset
	limit := params.Limit
	if offset > total {
		limit = 0
	} else if offset+limit > total {
		limit = total - offset
	}

	var items []T
	if limit > 0 {
		entries, err := directPage(ctx, offset, limit)
		if err != nil {
			return models.Page[T]{}, &DualSourceExhaustedError{
				IndexedCause: indexedCause, DirectCause: err,
			}
		}
		for idx, entry := range entries {
			if !entry.Ok {
				warnings = append(warnings, fmt.Sprintf(
					"entry %d degraded: %s", offset+idx, entry.Cause,
				))
			}
			items = append(items, entry.Value)
		}
	}

	return models.Page[T]{
		Items:    items,
		Total:    total,
		Offset:   params.Offset,
		Limit:    params.Limit,
		HasMore:  params.Offset+params.Limit < total,
		UsedMode: models.QueryModeRPC,
		Warnings: warnings,
	}, nil
}

// slicePage page an already complete indexed result set
func slicePage[T any](
	entries []T, params QueryParams, mode models.QueryModeENUMType, warnings []string,
) models.Page[T] {
	total := len(entries)

	start := params.Offset
	if start > total {
		start = total
	}
	end := start + params.Limit
	if end > total {
		end = total
	}

	return models.Page[T]{
		Items:    entries[start:end],
		Total:    total,
		Offset:   params.Offset,
		Limit:    params.Limit,
		HasMore:  params.Offset+params.Limit < total,
		UsedMode: mode,
		Warnings: warnings,
	}
}
