package models

import (
	"reflect"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
)

/*
RegisterWithValidator register with the validator this custom validation support

	@param v *validator.Validate - the validator to register against
	@return whether successful
*/
func RegisterWithValidator(v *validator.Validate) error {
	if err := v.RegisterValidation(
		"eth_addr_hex", validateEthAddress,
	); err != nil {
		return err
	}

	if err := v.RegisterValidation(
		"query_mode", validateQueryModeType,
	); err != nil {
		return err
	}

	if err := v.RegisterValidation(
		"authz_kind", validateAuthorizationKindType,
	); err != nil {
		return err
	}

	if err := v.RegisterValidation(
		"permission_operation", validatePermissionOperationType,
	); err != nil {
		return err
	}

	return nil
}

func validateEthAddress(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	return common.IsHexAddress(fl.Field().String())
}

func validateQueryModeType(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	switch QueryModeENUMType(fl.Field().String()) {
	case QueryModeAuto:
		fallthrough
	case QueryModeIndexed:
		fallthrough
	case QueryModeRPC:
		return true
	}
	return false
}

func validatePermissionOperationType(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	switch PermissionOperationENUMType(fl.Field().String()) {
	case PermissionOperationRead:
		fallthrough
	case PermissionOperationCompute:
		return true
	}
	return false
}

func validateAuthorizationKindType(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	switch AuthorizationKindENUMType(fl.Field().String()) {
	case AuthorizationKindGrant:
		fallthrough
	case AuthorizationKindRevoke:
		fallthrough
	case AuthorizationKindTrustServer:
		fallthrough
	case AuthorizationKindUntrustServer:
		fallthrough
	case AuthorizationKindAddAndTrustServer:
		fallthrough
	case AuthorizationKindServerFilesAndPermission:
		return true
	}
	return false
}
