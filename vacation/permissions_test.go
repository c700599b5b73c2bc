package vacation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warp/vacation-engine/vacation"
)

func TestDefaultPermissions_Table(t *testing.T) {
	table := vacation.DefaultPermissions()

	tests := []struct {
		role vacation.Role
		op   vacation.Operation
		want bool
	}{
		{vacation.RoleEmployee, vacation.OpCreate, true},
		{vacation.RoleEmployee, vacation.OpCancel, true},
		{vacation.RoleEmployee, vacation.OpApprove, false},
		{vacation.RoleEmployee, vacation.OpReject, false},
		{vacation.RoleManager, vacation.OpCreate, true},
		{vacation.RoleManager, vacation.OpApprove, false},
		{vacation.RoleHR, vacation.OpApprove, true},
		{vacation.RoleHR, vacation.OpReject, true},
		{vacation.RoleAdministrator, vacation.OpApprove, true},
		{vacation.RoleAdministrator, vacation.OpReject, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.role)+"_"+string(tt.op), func(t *testing.T) {
			assert.Equal(t, tt.want, table.Allows(tt.role, tt.op))
		})
	}
}

func TestPermissionTable_UnknownRole_DeniesEverything(t *testing.T) {
	table := vacation.DefaultPermissions()
	assert.False(t, table.Allows("CONTRACTOR", vacation.OpCreate))
	assert.False(t, table.Allows("", vacation.OpCancel))
}
