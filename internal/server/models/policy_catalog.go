package models

// PolicyCatalog lists the policies seeded by the schema migration, in seed order.
var PolicyCatalog = []string{
	"CreateBlogPost",
	"EditBlogPost",
	"DeleteBlogPost",
	"DeleteBlogPostArchivedRevision",
	"CreatePage",
	"EditPage",
	"DeletePage",
	"DeletePageArchivedRevision",
	"ApplySiteTheme",
	"CreateSiteTheme",
	"EditSiteTheme",
	"DeleteSiteTheme",
	"CreateAnyUser",
	"EditAnyUser",
	"DeleteAnyUser",
	"PromoteAnyUser",
	"ChangeOwnUsername",
}
