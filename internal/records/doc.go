// Package records serves the saved-prospect and research-report endpoints.
//
//	POST   /prospects/save        {type, data, user_id}
//	GET    /prospects/list?user_id=
//	POST   /research/save         {user_id, prospect_id, prospect_name, company, report}
//	GET    /research/list?user_id=
//	DELETE /research/{id}
//
// Requests need a bearer token; user_id must be the token's subject or the
// request is refused with 403. Saving a prospect whose data.id was saved
// before replaces the stored payload. Deleting a report that does not exist
// is 404.
package records
