// Package http exposes the attendance tracker over a JSON API built on chi.
//
// The router exposes the following endpoints:
//   - GET /health: pings the store. 200 {"status":"ok"} or 503 {"status":"unavailable"}.
//   - GET /metrics: Prometheus exposition of the private registry.
//   - GET /calendar.ics: every template, event and instance as an iCalendar feed.
//     Templates become RRULE series and generated instances override their
//     occurrence through RECURRENCE-ID.
//   - POST /materialize: runs a pass for {"date"}, {"from","to"} or today when the
//     body is empty. Responds with counts and the visited instances.
//   - GET /contacts, POST /contacts, GET|PUT|DELETE /contacts/{id}: the contact
//     directory, exchanging `contactDTO`.
//   - POST /contacts/sync: upserts {"contacts":[...]} or pulls from the configured
//     provider when the body is empty.
//   - GET /contacts/{id}/attendance: every record stored for the contact.
//   - GET /groups, POST /groups, GET|PUT|DELETE /groups/{id},
//     POST /groups/{id}/members, DELETE /groups/{id}/members/{contactID}: contact
//     groups exchanging `groupDTO`.
//   - GET /templates[?active=true], POST /templates, PUT /templates/{id},
//     PUT /templates/{id}/active: weekly recurring templates.
//   - GET /templates/{id}/occurrences?from&to: due dates in a window, without
//     materializing them.
//   - GET /events[?from&to&kind], POST /events, GET|PUT|DELETE /events/{id}: dated
//     events, templates and generated instances exchanging `eventDTO`.
//   - GET /events/{id}/contacts: contacts eligible through the event's groups.
//   - GET /events/{id}/attendance: the summary plus one row per eligible contact.
//   - GET|PUT /events/{id}/attendance/{contactID}: a single record. PUT accepts
//     {"present"} and/or {"notes"}.
//
// Service errors map to statuses by kind: not_found 404, already_exists and
// not_template 409, invalid_range 400, validation 422, unavailable 503.
package http
