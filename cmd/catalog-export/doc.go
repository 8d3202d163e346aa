// Command catalog-export pages through the merchant listing API, attaches
// vehicle compatibility to every product, downloads product images and writes
// the result as a CSV file.
//
// Usage:
//
//	catalog-export config init
//	CATALOG_COOKIE='PHPSESSID=...' catalog-export run --pages 5
package main
