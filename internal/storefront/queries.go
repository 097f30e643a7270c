package storefront

// Every document binds caller-supplied identifiers through variables.
// $linesFirst / $linesAfter are declared on every operation because the
// shared fragment pages the cart lines.

const cartFieldsFragment = `
fragment CartFields on Cart {
  id
  checkoutUrl
  totalQuantity
  lines(first: $linesFirst, after: $linesAfter) {
    pageInfo {
      hasNextPage
      endCursor
    }
    edges {
      node {
        id
        quantity
        merchandise {
          ... on ProductVariant {
            id
            title
            priceV2 {
              amount
              currencyCode
            }
            product {
              title
              handle
              images(first: 1) {
                edges {
                  node {
                    url
                    altText
                  }
                }
              }
            }
          }
        }
      }
    }
  }
}
`

const userErrorFields = `
    userErrors {
      field
      message
      code
    }
`

// CartCreateMutation creates an empty cart.
const CartCreateMutation = `
mutation CartCreate($linesFirst: Int!, $linesAfter: String) {
  cartCreate {
    cart {
      ...CartFields
    }
` + userErrorFields + `
  }
}
` + cartFieldsFragment

// CartQuery fetches a cart by id. It is also used to page through lines.
const CartQuery = `
query Cart($id: ID!, $linesFirst: Int!, $linesAfter: String) {
  cart(id: $id) {
    ...CartFields
  }
}
` + cartFieldsFragment

// CartLinesAddMutation adds merchandise lines to a cart.
const CartLinesAddMutation = `
mutation CartLinesAdd($cartId: ID!, $lines: [CartLineInput!]!, $linesFirst: Int!, $linesAfter: String) {
  cartLinesAdd(cartId: $cartId, lines: $lines) {
    cart {
      ...CartFields
    }
` + userErrorFields + `
  }
}
` + cartFieldsFragment

// CartLinesRemoveMutation removes lines by id.
const CartLinesRemoveMutation = `
mutation CartLinesRemove($cartId: ID!, $lineIds: [ID!]!, $linesFirst: Int!, $linesAfter: String) {
  cartLinesRemove(cartId: $cartId, lineIds: $lineIds) {
    cart {
      ...CartFields
    }
` + userErrorFields + `
  }
}
` + cartFieldsFragment

// CartLinesUpdateMutation sets line quantities.
const CartLinesUpdateMutation = `
mutation CartLinesUpdate($cartId: ID!, $lines: [CartLineUpdateInput!]!, $linesFirst: Int!, $linesAfter: String) {
  cartLinesUpdate(cartId: $cartId, lines: $lines) {
    cart {
      ...CartFields
    }
` + userErrorFields + `
  }
}
` + cartFieldsFragment

// CartLineInput is the cartLinesAdd line input.
type CartLineInput struct {
	MerchandiseID string `json:"merchandiseId"`
	Quantity      int    `json:"quantity"`
}

// CartLineUpdateInput is the cartLinesUpdate line input.
type CartLineUpdateInput struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}
