package rbac

// Stable resource names for the guarded operations of the service itself.
// Routes reference these constants so the protected name and the route can
// never drift apart.
const (
	ResourceGetAllUsers        = "GetAllUsers"
	ResourceGetUserByID        = "GetUserById"
	ResourceCreateUser         = "CreateUser"
	ResourceUpdateUser         = "UpdateUser"
	ResourceDeleteUser         = "DeleteUser"
	ResourceGetRolesByUserID   = "GetRolesByUserId"
	ResourceAssignRolesToUser  = "AssignRolesToUser"
	ResourceRevokeRoleFromUser = "RevokeRoleFromUser"
	ResourceChangePassword     = "ChangePassword"

	ResourceGetAllRoles          = "GetAllRoles"
	ResourceGetRoleByID          = "GetRoleById"
	ResourceCreateRole           = "CreateRole"
	ResourceUpdateRole           = "UpdateRole"
	ResourceDeleteRole           = "DeleteRole"
	ResourceGetResourcesByRoleID = "GetResourcesByRoleId"
	ResourceAssignResources      = "AssignResourcesToRole"

	ResourceGetAllResources   = "GetAllResources"
	ResourceGetResourceByID   = "GetResourceById"
	ResourceCreateResource    = "CreateResource"
	ResourceUpdateResource    = "UpdateResource"
	ResourceDeleteResource    = "DeleteResource"
	ResourceCheckAccess       = "CheckAccess"
	ResourceStreamDecisions   = "StreamDecisions"
)

// BuiltinResources is the catalog seeded on startup. The built-in
// Administrator role is granted all of them.
var BuiltinResources = []Resource{
	{Name: ResourceGetAllUsers, Description: "List all users"},
	{Name: ResourceGetUserByID, Description: "Get a user by id"},
	{Name: ResourceCreateUser, Description: "Create a new user"},
	{Name: ResourceUpdateUser, Description: "Update a user"},
	{Name: ResourceDeleteUser, Description: "Delete a user"},
	{Name: ResourceGetRolesByUserID, Description: "List the roles assigned to a user"},
	{Name: ResourceAssignRolesToUser, Description: "Replace the roles assigned to a user"},
	{Name: ResourceRevokeRoleFromUser, Description: "Revoke a role from a user"},
	{Name: ResourceChangePassword, Description: "Change a user's password"},
	{Name: ResourceGetAllRoles, Description: "List all roles"},
	{Name: ResourceGetRoleByID, Description: "Get a role by id"},
	{Name: ResourceCreateRole, Description: "Create a new role"},
	{Name: ResourceUpdateRole, Description: "Update a role"},
	{Name: ResourceDeleteRole, Description: "Delete a role"},
	{Name: ResourceGetResourcesByRoleID, Description: "List the resources granted to a role"},
	{Name: ResourceAssignResources, Description: "Replace the resources granted to a role"},
	{Name: ResourceGetAllResources, Description: "List the resource catalog"},
	{Name: ResourceGetResourceByID, Description: "Get a resource by id"},
	{Name: ResourceCreateResource, Description: "Create a new resource"},
	{Name: ResourceUpdateResource, Description: "Update a resource"},
	{Name: ResourceDeleteResource, Description: "Delete a resource"},
	{Name: ResourceCheckAccess, Description: "Evaluate an authorization decision"},
	{Name: ResourceStreamDecisions, Description: "Subscribe to the authorization decision feed"},
}
