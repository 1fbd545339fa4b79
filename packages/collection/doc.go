// Package collection builds Postman v2.1 request collections from test
// cases.
//
// Every item carries its test case id as the Postman item id and as a
// "[id]" suffix on its name, so runner output can be attributed back to the
// originating case regardless of execution order or folder layout.
package collection
